package chain

import (
	"context"
	"fmt"

	"web3-orchestrator/internal/core/ports"
)

// HealthCheck implements ports.HealthChecker for the RPC node.
type HealthCheck struct {
	client  ports.EVMClient
	chainID int64
}

// NewHealthCheck creates an RPC health checker for chainID.
func NewHealthCheck(client ports.EVMClient, chainID int64) *HealthCheck {
	return &HealthCheck{client: client, chainID: chainID}
}

// Ping fetches the latest header.
func (h *HealthCheck) Ping(ctx context.Context) error {
	header, err := h.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}
	if header == nil {
		return fmt.Errorf("chain %d: empty head", h.chainID)
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "rpc"
}
