package server

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is a live, upgraded connection.
type Client struct {
	// ID identifies the connection in logs and metrics.
	ID uuid.UUID

	// Addr is the peer IP address.
	Addr string

	// Port is the peer TCP port.
	Port int

	// ConnectedAt is the time the handshake completed.
	ConnectedAt time.Time

	fd int

	// pending holds the start of a frame whose remainder has not arrived.
	pending []byte

	closed bool
}

func newClient(fd int, addr string, port int) *Client {
	return &Client{
		ID:          uuid.New(),
		Addr:        addr,
		Port:        port,
		ConnectedAt: time.Now(),
		fd:          fd,
	}
}

// RemoteAddr returns the peer address as host:port.
func (c *Client) RemoteAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// Fd returns the socket descriptor.
func (c *Client) Fd() int {
	return c.fd
}

// Registry is the insertion-ordered set of connected clients plus the
// listening socket. It is mutated only from the tick loop; the lock lets
// other goroutines read counts and snapshots.
type Registry struct {
	mu       sync.RWMutex
	listener int
	clients  []*Client
	byFd     map[int]*Client
}

// NewRegistry creates a registry around a listening socket descriptor.
func NewRegistry(listener int) *Registry {
	return &Registry{
		listener: listener,
		byFd:     make(map[int]*Client),
	}
}

// Add registers a client. Adding a descriptor twice replaces the entry
// without changing its position.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byFd[c.fd]; ok {
		for i, existing := range r.clients {
			if existing.fd == c.fd {
				r.clients[i] = c
			}
		}
	} else {
		r.clients = append(r.clients, c)
	}
	r.byFd[c.fd] = c
}

// Remove unregisters the client with the given descriptor.
func (r *Registry) Remove(fd int) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byFd[fd]
	if !ok {
		return nil, false
	}
	delete(r.byFd, fd)
	for i, existing := range r.clients {
		if existing.fd == fd {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			break
		}
	}
	return c, true
}

// Get returns the client with the given descriptor.
func (r *Registry) Get(fd int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byFd[fd]
	return c, ok
}

// IsListener reports whether fd is the listening socket.
func (r *Registry) IsListener(fd int) bool {
	return fd == r.listener
}

// Listener returns the listening socket descriptor.
func (r *Registry) Listener() int {
	return r.listener
}

// Clients returns the connected clients in insertion order.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, len(r.clients))
	copy(out, r.clients)
	return out
}

// Len returns the number of connected clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Fds returns the listener followed by every client descriptor in
// insertion order.
func (r *Registry) Fds() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fds := make([]int, 0, len(r.clients)+1)
	fds = append(fds, r.listener)
	for _, c := range r.clients {
		fds = append(fds, c.fd)
	}
	return fds
}
