package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "transport error",
			code:    "E100",
			wantMsg: "Cannot listen on address",
			wantCat: CategoryTransport,
		},
		{
			name:    "protocol error",
			code:    "E110",
			wantMsg: "Handshake request has no Sec-WebSocket-Key",
			wantCat: CategoryProtocol,
		},
		{
			name:    "storage error",
			code:    "E131",
			wantMsg: "Unsupported store DSN",
			wantCat: CategoryStorage,
		},
		{
			name:    "unknown error code",
			code:    "E999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "unknown command %q", "paint")
	if err.Message != `unknown command "paint"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Code != "" {
		t.Errorf("Code = %q, want empty", err.Code)
	}
}

func TestCanvasError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CanvasError
		want string
	}{
		{"code_only", New("E122"), "E122: Invalid port"},
		{"with_detail", New("E122").WithDetail("70000"), "E122: Invalid port (70000)"},
		{"wrapped", New("E130").Wrap(fmt.Errorf("disk full")), "E130: Cannot open store: disk full"},
		{"no_code", Newf(CategoryCLI, "boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanvasError_Chaining(t *testing.T) {
	cause := stderrors.New("address already in use")
	err := New("E100").
		WithDetail("0.0.0.0:10500").
		WithSuggestion("Pick another port with --port").
		Wrap(cause)

	if err.Detail != "0.0.0.0:10500" || err.Suggestion == "" {
		t.Error("builder methods did not set fields")
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !stderrors.Is(fmt.Errorf("serve: %w", err), New("E100")) {
		t.Error("errors.Is should match by code through wrapping")
	}
	if stderrors.Is(err, New("E101")) {
		t.Error("errors.Is matched a different code")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E100") != nil {
		t.Error("FromError(nil) should be nil")
	}

	plain := stderrors.New("plain")
	ce := FromError(plain, "E130")
	if ce.Code != "E130" || ce.Wrapped != plain {
		t.Errorf("FromError(plain) = %+v", ce)
	}

	existing := New("E120")
	if got := FromError(fmt.Errorf("load: %w", existing), "E130"); got != existing {
		t.Error("FromError should return the CanvasError already in the chain")
	}
}

func TestCode(t *testing.T) {
	if got := Code(fmt.Errorf("x: %w", New("E141"))); got != "E141" {
		t.Errorf("Code() = %q, want E141", got)
	}
	if got := Code(stderrors.New("x")); got != "" {
		t.Errorf("Code() = %q, want empty", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	out := New("E100").
		WithDetail("0.0.0.0:10500").
		WithSuggestion("Pick another port").
		Wrap(stderrors.New("bind: address already in use")).
		Format()

	for _, want := range []string{
		"ERROR E100: Cannot listen on address",
		"0.0.0.0:10500",
		"Hint: Pick another port",
		"Cause: bind: address already in use",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() contains color codes with colors disabled")
	}
}

func TestFormatCompact(t *testing.T) {
	got := New("E131").WithDetail("ftp://x").FormatCompact()
	if got != "E131: Unsupported store DSN [ftp://x]" {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	raw := New("E140").WithDetail("bucket=snapshots").Wrap(stderrors.New("denied")).FormatJSON()

	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v\n%s", err, raw)
	}
	want := map[string]string{
		"code":     "E140",
		"category": "export",
		"detail":   "bucket=snapshots",
		"cause":    "denied",
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s = %q, want %q", k, decoded[k], v)
		}
	}
}

func TestFprintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	FprintError(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Errorf("FprintError(plain) = %q", buf.String())
	}

	buf.Reset()
	FprintError(&buf, fmt.Errorf("serve: %w", New("E100")))
	if !strings.Contains(buf.String(), "ERROR E100") {
		t.Errorf("FprintError(coded) = %q", buf.String())
	}
}

func TestGetAllCodes(t *testing.T) {
	codes := GetAllCodes()
	if len(codes) == 0 {
		t.Fatal("no codes registered")
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("codes not sorted: %v", codes)
		}
	}
	for _, code := range codes {
		tmpl, _ := GetTemplate(code)
		if tmpl.Message == "" || tmpl.Category == "" {
			t.Errorf("%s has an incomplete template", code)
		}
	}
}

func TestRegister(t *testing.T) {
	Register("E900", ErrorTemplate{Category: CategoryCLI, Message: "Test error"})
	defer delete(registry, "E900")

	if _, ok := GetTemplate("E900"); !ok {
		t.Fatal("registered template not found")
	}
	if New("E900").Message != "Test error" {
		t.Error("New() did not use the registered template")
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  int
	}{
		{"", 10, 0},
		{"short", 10, 1},
		{"one two three four five six", 10, 3},
	}
	for _, tt := range tests {
		if got := len(wrapText(tt.text, tt.width)); got != tt.want {
			t.Errorf("wrapText(%q, %d) gave %d lines, want %d", tt.text, tt.width, got, tt.want)
		}
	}
}
