package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"web3-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// kv is a prefixed byte store; a miss reads as nil, nil.
type kv struct {
	client goredis.Cmdable
	prefix string
	name   string
}

func (s kv) get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis %s get: %w", s.name, err)
	}
	return val, nil
}

func (s kv) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis %s set: %w", s.name, err)
	}
	return nil
}

// IdempotencyCache implements ports.IdempotencyCache. It holds the serialized
// invoice a create request produced, keyed by owner and client key.
type IdempotencyCache struct {
	kv
}

func NewIdempotencyCache(client goredis.Cmdable) *IdempotencyCache {
	return &IdempotencyCache{kv{client: client, prefix: "idempotency:", name: "idempotency"}}
}

func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.get(ctx, key)
}

func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.set(ctx, key, value, ttl)
}

// VerificationCache implements ports.VerificationCache. Verdicts are keyed by
// invoice and lowercased transaction hash.
type VerificationCache struct {
	kv
}

func NewVerificationCache(client goredis.Cmdable) *VerificationCache {
	return &VerificationCache{kv{client: client, prefix: "verdict:", name: "verdict"}}
}

func verdictKey(invoiceID uuid.UUID, txHash string) string {
	return invoiceID.String() + ":" + strings.ToLower(txHash)
}

// Get returns the cached verdict, or nil, nil on a miss.
func (c *VerificationCache) Get(ctx context.Context, invoiceID uuid.UUID, txHash string) (*domain.PaymentVerdict, error) {
	val, err := c.get(ctx, verdictKey(invoiceID, txHash))
	if err != nil || val == nil {
		return nil, err
	}

	var verdict domain.PaymentVerdict
	if err := json.Unmarshal(val, &verdict); err != nil {
		return nil, fmt.Errorf("decode cached verdict: %w", err)
	}
	return &verdict, nil
}

func (c *VerificationCache) Set(ctx context.Context, invoiceID uuid.UUID, txHash string, verdict *domain.PaymentVerdict, ttl time.Duration) error {
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	return c.set(ctx, verdictKey(invoiceID, txHash), data, ttl)
}
