package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MessageTypeUpdate is the type of every server → client message.
const MessageTypeUpdate = "update"

// Message errors.
var (
	ErrMissingCoord = errors.New("protocol: message missing x or y")
	ErrInvalidCoord = errors.New("protocol: invalid grid coordinate")
)

// Grid maps row (y) → column (x) → character. A nil character is an
// explicit erase; a missing key is an unset cell.
type Grid map[int]map[int]*string

// Set stores c at (x, y), creating the row on first use.
func (g Grid) Set(x, y int, c *string) {
	row, ok := g[y]
	if !ok {
		row = make(map[int]*string)
		g[y] = row
	}
	row[x] = c
}

// Get returns the cell at (x, y) and whether it is present.
func (g Grid) Get(x, y int) (*string, bool) {
	row, ok := g[y]
	if !ok {
		return nil, false
	}
	c, ok := row[x]
	return c, ok
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	n := 0
	for _, row := range g {
		n += len(row)
	}
	return n
}

// Clone returns a deep copy of the grid.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for y, row := range g {
		r := make(map[int]*string, len(row))
		for x, c := range row {
			if c != nil {
				v := *c
				c = &v
			}
			r[x] = c
		}
		out[y] = r
	}
	return out
}

// FormatCoord converts a grid index to its wire-format object key.
func FormatCoord(n int) string {
	return strconv.Itoa(n)
}

// ParseCoord converts a wire-format object key to a grid index.
func ParseCoord(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoord, s)
	}
	return n, nil
}

// MarshalJSON encodes the grid with decimal string keys.
func (g Grid) MarshalJSON() ([]byte, error) {
	wire := make(map[string]map[string]*string, len(g))
	for y, row := range g {
		r := make(map[string]*string, len(row))
		for x, c := range row {
			r[FormatCoord(x)] = c
		}
		wire[FormatCoord(y)] = r
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a grid, parsing each key to an integer.
func (g *Grid) UnmarshalJSON(data []byte) error {
	var wire map[string]map[string]*string
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Grid, len(wire))
	for ys, row := range wire {
		y, err := ParseCoord(ys)
		if err != nil {
			return err
		}
		for xs, c := range row {
			x, err := ParseCoord(xs)
			if err != nil {
				return err
			}
			out.Set(x, y, c)
		}
		if len(row) == 0 {
			out[y] = make(map[int]*string)
		}
	}
	*g = out
	return nil
}

// UpdateMessage is sent from server to client.
type UpdateMessage struct {
	Type string `json:"type"`
	Data Grid   `json:"data"`
}

// NewUpdate wraps a grid in an update message.
func NewUpdate(g Grid) *UpdateMessage {
	if g == nil {
		g = Grid{}
	}
	return &UpdateMessage{Type: MessageTypeUpdate, Data: g}
}

// ClientMessage is sent from client to server. HasC distinguishes a text
// edit (including an erase, where C is nil) from a cursor move.
type ClientMessage struct {
	X    int
	Y    int
	C    *string
	HasC bool
}

// IsEdit reports whether the message changes a cell.
func (m *ClientMessage) IsEdit() bool {
	return m.HasC
}

// ParseClientMessage decodes a client payload.
func ParseClientMessage(payload string) (*ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}

	m := &ClientMessage{}
	if err := decodeCoordField(fields, "x", &m.X); err != nil {
		return nil, err
	}
	if err := decodeCoordField(fields, "y", &m.Y); err != nil {
		return nil, err
	}

	if raw, ok := fields["c"]; ok {
		m.HasC = true
		if err := json.Unmarshal(raw, &m.C); err != nil {
			return nil, fmt.Errorf("protocol: decode c: %w", err)
		}
	}
	return m, nil
}

// MarshalJSON encodes the message, omitting c for cursor moves.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	if m.HasC {
		return json.Marshal(struct {
			X int     `json:"x"`
			Y int     `json:"y"`
			C *string `json:"c"`
		}{m.X, m.Y, m.C})
	}
	return json.Marshal(struct {
		X int `json:"x"`
		Y int `json:"y"`
	}{m.X, m.Y})
}

func decodeCoordField(fields map[string]json.RawMessage, name string, dst *int) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return ErrMissingCoord
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s=%s", ErrInvalidCoord, name, raw)
	}
	return nil
}
