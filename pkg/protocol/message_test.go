package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantX    int
		wantY    int
		wantHasC bool
		wantC    *string
	}{
		{"edit", `{"x":3,"y":-7,"c":"h"}`, 3, -7, true, strPtr("h")},
		{"erase", `{"x":3,"y":7,"c":null}`, 3, 7, true, nil},
		{"cursor", `{"x":0,"y":0}`, 0, 0, false, nil},
		{"extra_fields", `{"x":1,"y":2,"z":9}`, 1, 2, false, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseClientMessage(tc.payload)
			if err != nil {
				t.Fatalf("ParseClientMessage() error = %v", err)
			}
			if m.X != tc.wantX || m.Y != tc.wantY {
				t.Errorf("coords = (%d,%d), want (%d,%d)", m.X, m.Y, tc.wantX, tc.wantY)
			}
			if m.HasC != tc.wantHasC || m.IsEdit() != tc.wantHasC {
				t.Errorf("HasC = %v, want %v", m.HasC, tc.wantHasC)
			}
			switch {
			case tc.wantC == nil && m.C != nil:
				t.Errorf("C = %q, want nil", *m.C)
			case tc.wantC != nil && (m.C == nil || *m.C != *tc.wantC):
				t.Errorf("C = %v, want %q", m.C, *tc.wantC)
			}
		})
	}
}

func TestParseClientMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"missing_y", `{"x":1}`, ErrMissingCoord},
		{"null_x", `{"x":null,"y":1}`, ErrMissingCoord},
		{"string_x", `{"x":"a","y":1}`, ErrInvalidCoord},
		{"not_json", `hello`, nil},
		{"c_number", `{"x":1,"y":1,"c":5}`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseClientMessage(tc.payload)
			if err == nil {
				t.Fatal("ParseClientMessage() should fail")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestClientMessageMarshal(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
		want string
	}{
		{"edit", ClientMessage{X: 1, Y: 2, C: strPtr("a"), HasC: true}, `{"x":1,"y":2,"c":"a"}`},
		{"erase", ClientMessage{X: 1, Y: 2, HasC: true}, `{"x":1,"y":2,"c":null}`},
		{"cursor", ClientMessage{X: 1, Y: 2}, `{"x":1,"y":2}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tc.want {
				t.Errorf("Marshal() = %s, want %s", data, tc.want)
			}
		})
	}
}

func TestGridJSON(t *testing.T) {
	g := Grid{}
	g.Set(0, 0, strPtr("h"))
	g.Set(1, 0, strPtr("i"))
	g.Set(-4, 12, nil)

	data, err := json.Marshal(NewUpdate(g))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"update","data":{"0":{"0":"h","1":"i"},"12":{"-4":null}}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var back UpdateMessage
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Type != MessageTypeUpdate {
		t.Errorf("Type = %q, want update", back.Type)
	}
	if c, ok := back.Data.Get(1, 0); !ok || c == nil || *c != "i" {
		t.Errorf("cell (1,0) = %v, %v; want i", c, ok)
	}
	if c, ok := back.Data.Get(-4, 12); !ok || c != nil {
		t.Errorf("cell (-4,12) = %v, %v; want explicit nil", c, ok)
	}
	if back.Data.Cells() != 3 {
		t.Errorf("Cells() = %d, want 3", back.Data.Cells())
	}
}

func TestGridUnmarshalRejectsBadKeys(t *testing.T) {
	var g Grid
	err := json.Unmarshal([]byte(`{"a":{"0":"x"}}`), &g)
	if !errors.Is(err, ErrInvalidCoord) {
		t.Errorf("Unmarshal() error = %v, want ErrInvalidCoord", err)
	}
}

func TestNewUpdateNilGrid(t *testing.T) {
	data, err := json.Marshal(NewUpdate(nil))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if want := `{"type":"update","data":{}}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestGridClone(t *testing.T) {
	g := Grid{}
	g.Set(0, 0, strPtr("a"))

	c := g.Clone()
	*c[0][0] = "b"
	c.Set(1, 1, strPtr("c"))

	if *g[0][0] != "a" {
		t.Error("Clone shares character storage")
	}
	if _, ok := g.Get(1, 1); ok {
		t.Error("Clone shares rows")
	}
}

func TestCoordRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, -1, 65536, -2147483648} {
		got, err := ParseCoord(FormatCoord(n))
		if err != nil || got != n {
			t.Errorf("ParseCoord(FormatCoord(%d)) = %d, %v", n, got, err)
		}
	}
}
