package redis

import (
	"context"
	"fmt"
	"time"

	"web3-orchestrator/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const clientName = "web3-orchestrator"

// NewClient connects to Redis and pings it once.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("claim store connected")
	return client, nil
}

const healthProbeKey = "health:probe"

// HealthCheck implements ports.HealthChecker. Settlement claims need writes,
// so the probe writes a short-lived key instead of a bare PING.
type HealthCheck struct {
	client goredis.Cmdable
}

func NewHealthCheck(client goredis.Cmdable) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return h.client.Set(ctx, healthProbeKey, time.Now().Unix(), 5*time.Second).Err()
}

func (h *HealthCheck) Name() string {
	return "redis"
}
