// Package canvas holds the shared character grid and tracks which cells
// changed since it was last drained.
package canvas

import (
	"sync"

	"github.com/vango-dev/textcanvas/pkg/protocol"
)

// Grid is the row → column → character mapping shared with the wire format.
type Grid = protocol.Grid

// Canvas is an unbounded sparse grid of optional characters. Every write
// lands in both the authoritative grid and the pending view; draining the
// pending view returns exactly the writes made since the previous drain.
type Canvas struct {
	mu      sync.Mutex
	data    Grid
	pending Grid
}

// New creates an empty canvas.
func New() *Canvas {
	return &Canvas{
		data:    Grid{},
		pending: Grid{},
	}
}

// Write sets the cell at (x, y). A nil c records an erase.
func (c *Canvas) Write(x, y int, ch *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Set(x, y, copyChar(ch))
	c.pending.Set(x, y, copyChar(ch))
}

func copyChar(ch *string) *string {
	if ch == nil {
		return nil
	}
	v := *ch
	return &v
}

// ReadAll returns the full grid, or with drain set, the pending changes.
// Draining resets the pending view to empty. The full grid is returned as
// a copy; the drained grid is handed over to the caller.
func (c *Canvas) ReadAll(drain bool) Grid {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !drain {
		return c.data.Clone()
	}
	pending := c.pending
	c.pending = Grid{}
	return pending
}

// Len returns the number of cells in the full grid.
func (c *Canvas) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Cells()
}

// Pending returns the number of cells written since the last drain.
func (c *Canvas) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Cells()
}
