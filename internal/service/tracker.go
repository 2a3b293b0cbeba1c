package service

import (
	"context"
	"errors"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const defaultReceiptTimeout = 5 * time.Minute

// ConfirmHook runs after an action reached Confirmed.
type ConfirmHook func(ctx context.Context, action domain.PendingAction)

// Tracker follows a broadcast transaction to its receipt.
type Tracker struct {
	gateway        ports.ContractGateway
	receiptTimeout time.Duration
	hooks          []ConfirmHook
	metrics        *metrics.OrchestratorMetrics
	log            zerolog.Logger
}

// NewTracker creates a Tracker. A non-positive timeout uses the default.
func NewTracker(gateway ports.ContractGateway, receiptTimeout time.Duration, m *metrics.OrchestratorMetrics, log zerolog.Logger) *Tracker {
	if receiptTimeout <= 0 {
		receiptTimeout = defaultReceiptTimeout
	}
	return &Tracker{
		gateway:        gateway,
		receiptTimeout: receiptTimeout,
		metrics:        m,
		log:            log,
	}
}

// OnConfirmed registers a hook run for every confirmed action.
func (t *Tracker) OnConfirmed(hook ConfirmHook) {
	t.hooks = append(t.hooks, hook)
}

// Outcome waits for txRef and returns nil when it succeeded. Cancelling ctx
// does not abandon a broadcast transaction; only the receipt timeout does.
func (t *Tracker) Outcome(ctx context.Context, txRef common.Hash) error {
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.receiptTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := t.gateway.WaitForReceipt(waitCtx, txRef)
	t.metrics.ObserveReceiptWait(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperror.ErrReceiptTimeout(txRef.Hex(), err)
		}
		return apperror.ErrWriteFailed(err)
	}
	t.log.Debug().
		Str("tx", txRef.Hex()).
		Uint64("block", receipt.BlockNumber).
		Bool("success", receipt.Success).
		Msg("receipt received")
	if !receipt.Success {
		return apperror.ErrReverted(txRef.Hex())
	}
	return nil
}

// Confirmed runs the confirm hooks for a settled action.
func (t *Tracker) Confirmed(ctx context.Context, action domain.PendingAction) {
	for _, hook := range t.hooks {
		hook(context.WithoutCancel(ctx), action)
	}
}
