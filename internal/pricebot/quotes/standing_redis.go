package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

const (
	standingKeyPrefix = "pricebot:standing:"
	standingIndexKey  = "pricebot:standing:index"
)

// RedisOption configures a RedisStandingStore.
type RedisOption func(*RedisStandingStore)

// WithRedisTTL expires sheets that are not re-confirmed within ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStandingStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces keys, e.g. per environment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStandingStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// RedisStandingStore keeps standing quotes in Redis so they survive restarts.
// Each sheet is a JSON string; a set indexes the vendor ids.
type RedisStandingStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStandingStore wraps client.
func NewRedisStandingStore(client *redis.Client, opts ...RedisOption) *RedisStandingStore {
	s := &RedisStandingStore{client: client, prefix: standingKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStandingStore) Get(ctx context.Context, vendorID string) (domain.StandardQuote, bool, error) {
	val, err := s.client.Get(ctx, s.key(vendorID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StandardQuote{}, false, nil
	}
	if err != nil {
		return domain.StandardQuote{}, false, err
	}
	var q domain.StandardQuote
	if err := json.Unmarshal([]byte(val), &q); err != nil {
		return domain.StandardQuote{}, false, fmt.Errorf("quotes: decode standing quote: %w", err)
	}
	return q, true, nil
}

func (s *RedisStandingStore) Put(ctx context.Context, q domain.StandardQuote) error {
	if q.VendorID == "" {
		return fmt.Errorf("quotes: standing quote without vendor id")
	}
	val, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(q.VendorID), val, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), q.VendorID)
		return nil
	})
	return err
}

func (s *RedisStandingStore) Confirmed(ctx context.Context) ([]domain.StandardQuote, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var (
		out   []domain.StandardQuote
		stale []any
	)
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var q domain.StandardQuote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		if q.Confirmed {
			out = append(out, q)
		}
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(), stale...).Err()
	}
	sortSheets(out)
	return out, nil
}

// Close releases the client.
func (s *RedisStandingStore) Close() error {
	return s.client.Close()
}

func (s *RedisStandingStore) key(vendorID string) string { return s.prefix + vendorID }

func (s *RedisStandingStore) indexKey() string {
	if s.prefix == standingKeyPrefix {
		return standingIndexKey
	}
	return s.prefix + "index"
}
