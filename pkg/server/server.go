package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vango-dev/textcanvas/pkg/protocol"
)

// ErrNotListening is returned by Tick and Loop before Listen succeeded.
var ErrNotListening = errors.New("server: not listening")

// ErrPendingOverflow is reported when a client sends more bytes than
// MaxPendingBytes without completing a frame.
var ErrPendingOverflow = errors.New("server: pending frame exceeds limit")

// ErrHandshakeTimeout is reported when a connection does not finish its
// upgrade request within HandshakeTimeout.
var ErrHandshakeTimeout = errors.New("server: upgrade request not completed in time")

// ErrClientClosed is returned by Send for a client that was disconnected.
var ErrClientClosed = errors.New("server: client closed")

// Now returns the current time in hundredths of a second since the Unix
// epoch, the unit used for change watermarks.
func Now() int64 {
	return time.Now().UnixMilli() / 10
}

// Server multiplexes a listening socket and its upgraded clients on a
// single goroutine. Every tick it accepts at most one connection, reads
// from each readable client once, and broadcasts whatever the Handler
// reports as changed since the previous tick. No socket operation waits:
// a slow upgrade request is finished on later ticks and a send that finds
// the socket buffer full is dropped.
type Server struct {
	config   *Config
	handler  Handler
	registry *Registry

	// upgrades are accepted connections still sending their request
	// headers, in accept order.
	upgrades []*upgrade

	listener int
	port     int

	// lastTimestamp is nil until the first tick completes.
	lastTimestamp *int64
	now           func() int64

	metrics *Metrics
	logger  *slog.Logger
	readBuf []byte
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default() with component=server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock replaces the watermark clock.
func WithClock(now func() int64) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server. Listen must be called before Tick or Loop.
func New(config *Config, h Handler, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
		config.applyDefaults()
	}
	if h == nil {
		h = HandlerFuncs{}
	}

	s := &Server{
		config:   config,
		handler:  h,
		listener: -1,
		now:      Now,
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.readBuf = make([]byte, config.ReadChunkSize)
	return s
}

// Config returns the effective configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	fd, err := listenTCP(s.config.BindAddress, s.config.Port, s.config.Backlog)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.config.Address(), err)
	}
	port, err := boundPort(fd)
	if err != nil {
		closeFd(fd)
		return err
	}

	s.listener = fd
	s.port = port
	s.registry = NewRegistry(fd)
	s.logger.Info("listening", "address", s.config.BindAddress, "port", port)
	return nil
}

// Port returns the bound port, which differs from Config.Port when that is 0.
func (s *Server) Port() int {
	return s.port
}

// Registry returns the client registry, or nil before Listen.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Loop runs ticks forever, sleeping FrameDelay between them.
// It only returns if polling fails.
func (s *Server) Loop() error {
	return s.Run(context.Background())
}

// Run is Loop with cancellation. It returns nil once ctx is done; the
// sockets stay open until Close.
func (s *Server) Run(ctx context.Context) error {
	timer := time.NewTimer(s.config.FrameDelay)
	defer timer.Stop()

	for {
		if err := s.Tick(); err != nil {
			return err
		}
		timer.Reset(s.config.FrameDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Tick performs one pass over the sockets followed by one GetData call.
func (s *Server) Tick() error {
	if s.registry == nil {
		return ErrNotListening
	}
	start := time.Now()
	defer s.metrics.observeTick(start)

	s.expireUpgrades(start)

	ready, err := pollReadable(s.pollFds())
	if err != nil {
		return err
	}

	for _, fd := range ready {
		if s.registry.IsListener(fd) {
			s.acceptClient()
			continue
		}
		if u := s.findUpgrade(fd); u != nil {
			s.continueUpgrade(u)
			continue
		}
		if c, ok := s.registry.Get(fd); ok {
			s.readClient(c)
		}
	}

	if grid := s.handler.GetData(s.lastTimestamp); grid.Cells() > 0 {
		s.Broadcast(protocol.NewUpdate(grid))
	}

	ts := s.now()
	s.lastTimestamp = &ts
	return nil
}

// Watermark returns the timestamp passed to the next GetData call.
func (s *Server) Watermark() (int64, bool) {
	if s.lastTimestamp == nil {
		return 0, false
	}
	return *s.lastTimestamp, true
}

// pollFds lists the listener, then connections still upgrading, then
// registered clients in insertion order.
func (s *Server) pollFds() []int {
	fds := s.registry.Fds()
	out := make([]int, 0, len(fds)+len(s.upgrades))
	out = append(out, fds[0])
	for _, u := range s.upgrades {
		out = append(out, u.client.fd)
	}
	return append(out, fds[1:]...)
}

// upgrade is an accepted connection whose request headers have not all
// arrived.
type upgrade struct {
	client   *Client
	buf      []byte
	deadline time.Time
}

func (s *Server) acceptClient() {
	fd, addr, port, err := acceptConn(s.listener)
	if wouldBlock(err) {
		return
	}
	if err != nil {
		s.logger.Warn("accept failed", "error", err)
		return
	}

	u := &upgrade{
		client:   newClient(fd, addr, port),
		buf:      make([]byte, 0, s.config.HandshakeBufferSize),
		deadline: time.Now().Add(s.config.HandshakeTimeout),
	}
	s.upgrades = append(s.upgrades, u)

	// The request usually arrives together with the connection.
	s.continueUpgrade(u)
}

// continueUpgrade reads once from a connection that is still sending its
// upgrade request and completes the handshake once the headers are in.
func (s *Server) continueUpgrade(u *upgrade) {
	c := u.client
	n, err := readChunk(c.fd, u.buf[len(u.buf):cap(u.buf)])
	if wouldBlock(err) {
		return
	}
	if err != nil {
		s.abortUpgrade(u, "read", err)
		return
	}
	u.buf = u.buf[:len(u.buf)+n]

	request, rest, ok, err := protocol.SplitRequest(u.buf, s.config.HandshakeBufferSize)
	if err != nil {
		s.abortUpgrade(u, "too_large", err)
		return
	}
	if !ok {
		return
	}

	if err := s.handshake(c, request); err != nil {
		s.abortUpgrade(u, "", err)
		return
	}
	s.removeUpgrade(u)

	// A client may pipeline its first frames behind the request headers.
	c.pending = append(c.pending, rest...)
	c.ConnectedAt = time.Now()

	s.registry.Add(c)
	s.metrics.recordConnect(s.registry.Len())
	s.logger.Info("client connected", "remote", c.RemoteAddr(), "client", c.ID)
	s.handler.OnConnect(c)

	if len(c.pending) > 0 && !c.closed {
		s.dispatch(c, 0)
	}
}

// handshake answers a complete upgrade request.
func (s *Server) handshake(c *Client, raw []byte) error {
	request := string(raw)
	host, err := protocol.RequestHost(request)
	if err != nil {
		host = s.config.BindAddress
	}

	response, err := protocol.BuildHandshakeResponse(request, host, s.port)
	if err != nil {
		s.metrics.recordHandshakeError("missing_key")
		return err
	}
	if err := writeNonblock(c.fd, response); err != nil {
		s.metrics.recordHandshakeError("write")
		return err
	}
	return nil
}

// abortUpgrade closes a connection that failed its upgrade. An empty
// reason means the failure was already counted.
func (s *Server) abortUpgrade(u *upgrade, reason string, err error) {
	s.removeUpgrade(u)
	if reason != "" {
		s.metrics.recordHandshakeError(reason)
	}
	if errors.Is(err, io.EOF) {
		s.logger.Debug("connection closed during handshake", "remote", u.client.RemoteAddr())
	} else {
		s.logger.Warn("handshake failed", "remote", u.client.RemoteAddr(), "error", err)
	}
	u.client.closed = true
	closeFd(u.client.fd)
}

// expireUpgrades aborts connections whose request did not complete
// before their deadline.
func (s *Server) expireUpgrades(now time.Time) {
	for _, u := range append([]*upgrade(nil), s.upgrades...) {
		if now.After(u.deadline) {
			s.abortUpgrade(u, "timeout", ErrHandshakeTimeout)
		}
	}
}

func (s *Server) findUpgrade(fd int) *upgrade {
	for _, u := range s.upgrades {
		if u.client.fd == fd {
			return u
		}
	}
	return nil
}

func (s *Server) removeUpgrade(u *upgrade) {
	for i, existing := range s.upgrades {
		if existing == u {
			s.upgrades = append(s.upgrades[:i], s.upgrades[i+1:]...)
			return
		}
	}
}

// Upgrading returns the number of accepted connections that have not
// completed their handshake.
func (s *Server) Upgrading() int {
	return len(s.upgrades)
}

// readClient reads at most one chunk from c and dispatches every payload
// completed by it.
func (s *Server) readClient(c *Client) {
	n, err := readChunk(c.fd, s.readBuf)
	if wouldBlock(err) {
		return
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("read failed", "remote", c.RemoteAddr(), "error", err)
		}
		s.disconnect(c)
		return
	}

	c.pending = append(c.pending, s.readBuf[:n]...)
	s.dispatch(c, n)
}

// dispatch decodes the complete frames buffered for c and hands their
// payloads to the handler. n is the size of the read that filled it.
func (s *Server) dispatch(c *Client, n int) {
	payloads, consumed, err := protocol.DecodeAvailable(c.pending)
	c.pending = c.pending[consumed:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	s.metrics.recordRead(n, len(payloads))

	for _, payload := range payloads {
		s.handler.OnData(c, payload)
	}

	if err != nil {
		s.logger.Warn("invalid frame", "remote", c.RemoteAddr(), "error", err)
		s.disconnect(c)
		return
	}
	if len(c.pending) > s.config.MaxPendingBytes {
		s.logger.Warn("dropping client", "remote", c.RemoteAddr(), "error", ErrPendingOverflow)
		s.disconnect(c)
	}
}

func (s *Server) disconnect(c *Client) {
	if _, ok := s.registry.Remove(c.fd); !ok {
		return
	}
	c.closed = true
	closeFd(c.fd)
	s.metrics.recordDisconnect(s.registry.Len())
	s.logger.Info("client disconnected", "remote", c.RemoteAddr(), "client", c.ID)
}

// Send encodes v as one text frame and writes it to c without waiting.
// When the socket buffer is full the message is dropped for c; a frame cut
// off part way disconnects c.
func (s *Server) Send(c *Client, v any) error {
	frame, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}
	return s.sendFrame(c, frame)
}

func (s *Server) sendFrame(c *Client, frame []byte) error {
	if c.closed {
		return ErrClientClosed
	}
	err := writeNonblock(c.fd, frame)
	s.metrics.recordSend(len(frame), err)
	if errors.Is(err, errPartialWrite) {
		s.logger.Warn("dropping client", "remote", c.RemoteAddr(), "error", err)
		s.disconnect(c)
	}
	return err
}

// Broadcast encodes v once and writes it to every registered client.
// Write failures are logged and do not stop the broadcast.
func (s *Server) Broadcast(v any) error {
	frame, err := protocol.EncodeFrame(v)
	if err != nil {
		return err
	}
	s.metrics.recordBroadcast()
	for _, c := range s.registry.Clients() {
		if err := s.sendFrame(c, frame); err != nil {
			s.logger.Debug("send failed", "remote", c.RemoteAddr(), "error", err)
		}
	}
	return nil
}

// Close closes every client socket, every pending upgrade and the
// listener.
func (s *Server) Close() error {
	if s.registry == nil {
		return nil
	}
	var errs []error
	for _, u := range s.upgrades {
		u.client.closed = true
		if err := closeFd(u.client.fd); err != nil {
			errs = append(errs, err)
		}
	}
	s.upgrades = nil
	for _, c := range s.registry.Clients() {
		s.registry.Remove(c.fd)
		c.closed = true
		if err := closeFd(c.fd); err != nil {
			errs = append(errs, err)
		}
	}
	if err := closeFd(s.listener); err != nil {
		errs = append(errs, err)
	}
	s.registry = nil
	s.listener = -1
	return errors.Join(errs...)
}
