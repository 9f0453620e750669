package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Set TEXTCANVAS_TEST_REDIS to a redis:// URL to run these. Each subtest
// uses its own key prefix.
func TestRedisStore(t *testing.T) {
	dsn := os.Getenv("TEXTCANVAS_TEST_REDIS")
	if dsn == "" {
		t.Skip("TEXTCANVAS_TEST_REDIS not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		prefix := fmt.Sprintf("textcanvas-test:%s:", uuid.NewString())
		s, err := OpenRedis(ctx, dsn, WithRedisPrefix(prefix))
		if err != nil {
			t.Fatalf("OpenRedis() error = %v", err)
		}
		t.Cleanup(func() {
			keys, _ := s.client.Keys(context.Background(), prefix+"*").Result()
			if len(keys) > 0 {
				s.client.Del(context.Background(), keys...)
			}
			s.Close()
		})
		return s
	})
}

func TestRedisKeys(t *testing.T) {
	s := NewRedisStore(nil, WithRedisPrefix("p:"))
	if got := s.key("client", "7"); got != "p:client:7" {
		t.Errorf("key() = %q", got)
	}
	if got := cellField(-1, 2); got != "-1,2" {
		t.Errorf("cellField() = %q", got)
	}
}
