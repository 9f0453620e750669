package server

import "github.com/vango-dev/textcanvas/pkg/protocol"

// Handler is implemented by the application composed on top of the server.
// All methods are called from the tick loop, one at a time.
type Handler interface {
	// OnConnect is called once per client after a successful handshake.
	OnConnect(c *Client)

	// OnData is called once per decoded payload, in the order received.
	OnData(c *Client, payload string)

	// GetData is called every tick with the watermark of the previous tick
	// (nil on the first tick). A grid with cells is broadcast to every
	// client as an update message.
	GetData(since *int64) protocol.Grid
}

// HandlerFuncs adapts plain functions to the Handler interface.
// Nil fields are no-ops.
type HandlerFuncs struct {
	Connect func(c *Client)
	Data    func(c *Client, payload string)
	Poll    func(since *int64) protocol.Grid
}

// OnConnect calls h.Connect.
func (h HandlerFuncs) OnConnect(c *Client) {
	if h.Connect != nil {
		h.Connect(c)
	}
}

// OnData calls h.Data.
func (h HandlerFuncs) OnData(c *Client, payload string) {
	if h.Data != nil {
		h.Data(c, payload)
	}
}

// GetData calls h.Poll.
func (h HandlerFuncs) GetData(since *int64) protocol.Grid {
	if h.Poll != nil {
		return h.Poll(since)
	}
	return nil
}

// Sender writes a message to one client. *Server implements it.
type Sender interface {
	Send(c *Client, v any) error
}
