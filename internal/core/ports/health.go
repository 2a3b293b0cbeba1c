package ports

import "context"

// HealthChecker is one dependency reported by GET /health: the invoice
// database, the claim store or the chain RPC.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
