package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// SettlementClaims implements ports.SettlementClaims using Redis SET NX.
// The stored value is the invoice id, so a retry for the same invoice sees
// its own claim.
type SettlementClaims struct {
	client goredis.Cmdable
	prefix string
}

// NewSettlementClaims creates a new Redis-backed claim store.
func NewSettlementClaims(client goredis.Cmdable) *SettlementClaims {
	return &SettlementClaims{
		client: client,
		prefix: "settle:",
	}
}

func (s *SettlementClaims) key(txHash string) string {
	return s.prefix + strings.ToLower(txHash)
}

// Claim atomically binds txHash to invoiceID.
// Returns true if the claim is new or already held by invoiceID.
func (s *SettlementClaims) Claim(ctx context.Context, txHash string, invoiceID uuid.UUID, ttl time.Duration) (bool, error) {
	key := s.key(txHash)
	result, err := s.client.SetArgs(ctx, key, invoiceID.String(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err == nil {
		return result == "OK", nil
	}
	if !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("redis settlement claim: %w", err)
	}

	// Key already exists; it may be ours from an earlier attempt.
	holder, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Expired between the two calls; try once more.
			ok, err := s.client.SetNX(ctx, key, invoiceID.String(), ttl).Result()
			if err != nil {
				return false, fmt.Errorf("redis settlement claim: %w", err)
			}
			return ok, nil
		}
		return false, fmt.Errorf("redis settlement holder: %w", err)
	}
	return holder == invoiceID.String(), nil
}

// Release drops a claim so the hash can be tried again.
func (s *SettlementClaims) Release(ctx context.Context, txHash string) error {
	if err := s.client.Del(ctx, s.key(txHash)).Err(); err != nil {
		return fmt.Errorf("redis settlement release: %w", err)
	}
	return nil
}
