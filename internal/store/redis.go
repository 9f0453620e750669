package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps cells in a hash keyed "x,y" and indexes them by write
// time in a sorted set, so ChangesSince is a single range query.
//
// Keys, under the configured prefix (default "textcanvas:"):
//
//	client:seq      counter handing out client ids
//	client:<id>     hash of ip, port, x, y, timestamp
//	cells           hash of "x,y" -> JSON cell
//	changes         sorted set of "x,y" scored by timestamp
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default: "textcanvas:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// OpenRedis connects to a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, dsn string, opts ...RedisOption) (*RedisStore, error) {
	options, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDSN, err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "textcanvas:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func cellField(x, y int) string {
	return strconv.Itoa(x) + "," + strconv.Itoa(y)
}

// redisCell is the JSON form of a cell in the cells hash.
type redisCell struct {
	X         int     `json:"x"`
	Y         int     `json:"y"`
	C         *string `json:"c"`
	ClientID  int64   `json:"client_id"`
	Timestamp int64   `json:"timestamp"`
}

// NewClient implements Store.
func (s *RedisStore) NewClient(ctx context.Context, ip string, port int, ts int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	id, err := s.client.Incr(ctx, s.key("client", "seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("store: new client: %w", err)
	}
	err = s.client.HSet(ctx, s.key("client", strconv.FormatInt(id, 10)),
		"ip", ip,
		"port", port,
		"x", 0,
		"y", 0,
		"timestamp", ts,
	).Err()
	if err != nil {
		return 0, fmt.Errorf("store: new client: %w", err)
	}
	return id, nil
}

// SetText implements Store.
func (s *RedisStore) SetText(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(redisCell{X: e.X, Y: e.Y, C: e.C, ClientID: e.ClientID, Timestamp: e.Timestamp})
	if err != nil {
		return fmt.Errorf("store: set text: %w", err)
	}

	field := cellField(e.X, e.Y)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key("cells"), field, data)
		pipe.ZAdd(ctx, s.key("changes"), redis.Z{Score: float64(e.Timestamp), Member: field})
		s.moveCursor(ctx, pipe, e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: set text: %w", err)
	}
	return nil
}

// UpdateCursor implements Store.
func (s *RedisStore) UpdateCursor(ctx context.Context, e Edit) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.moveCursor(ctx, s.client, e); err != nil {
		return fmt.Errorf("store: update cursor: %w", err)
	}
	return nil
}

func (s *RedisStore) moveCursor(ctx context.Context, c redis.Cmdable, e Edit) error {
	return c.HSet(ctx, s.key("client", strconv.FormatInt(e.ClientID, 10)),
		"x", e.X,
		"y", e.Y,
		"timestamp", e.Timestamp,
	).Err()
}

// ChangesSince implements Store.
func (s *RedisStore) ChangesSince(ctx context.Context, since *int64) ([]Cell, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	lower := "-inf"
	if since != nil {
		lower = strconv.FormatInt(*since, 10)
	}
	fields, err := s.client.ZRangeByScore(ctx, s.key("changes"), &redis.ZRangeBy{Min: lower, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, s.key("cells"), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: changes: %w", err)
	}

	cells := make([]Cell, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rc redisCell
		if err := json.Unmarshal([]byte(raw), &rc); err != nil {
			return nil, fmt.Errorf("store: decode cell: %w", err)
		}
		cells = append(cells, Cell{X: rc.X, Y: rc.Y, C: rc.C, ClientID: rc.ClientID, Timestamp: rc.Timestamp})
	}
	sortCells(cells)
	return cells, nil
}

// Cursor implements CursorReader.
func (s *RedisStore) Cursor(ctx context.Context, id int64) (Cursor, error) {
	fields, err := s.client.HGetAll(ctx, s.key("client", strconv.FormatInt(id, 10))).Result()
	if errors.Is(err, redis.Nil) || (err == nil && fields["ip"] == "") {
		return Cursor{}, ErrUnknownClient
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("store: cursor: %w", err)
	}

	cur := Cursor{ClientID: id, IP: fields["ip"]}
	cur.Port, _ = strconv.Atoi(fields["port"])
	cur.X, _ = strconv.Atoi(fields["x"])
	cur.Y, _ = strconv.Atoi(fields["y"])
	cur.Timestamp, _ = strconv.ParseInt(fields["timestamp"], 10, 64)
	return cur, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}
