package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"env-dashboard/internal/logstore"
)

const (
	// LastKey je klíč s posledním záznamem.
	LastKey = "env:last"
	// LastTTL: když zařízení přestane posílat, poslední stav po čase zmizí.
	LastTTL = 24 * time.Hour
)

type setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisSink drží ve Valkey (Redis) jen poslední záznam jako JSON.
type RedisSink struct {
	rdb   setter
	close func() error
}

// NewRedisSink se připojí k Valkey a ověří spojení.
func NewRedisSink(ctx context.Context, addr string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("Valkey není dostupný: %w", err)
	}
	return &RedisSink{rdb: rdb, close: rdb.Close}, nil
}

func (s *RedisSink) Name() string { return "valkey" }

func (s *RedisSink) Save(ctx context.Context, r logstore.LogRecord) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("nelze serializovat záznam: %w", err)
	}
	if err := s.rdb.Set(ctx, LastKey, data, LastTTL).Err(); err != nil {
		return fmt.Errorf("chyba update Valkey: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() {
	if s.close != nil {
		s.close()
	}
}
