package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/units"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AmountInput is one user-typed amount of an action.
type AmountInput struct {
	Name     string
	Raw      string
	Decimals int
}

// ArgsFunc builds the call arguments once amounts are parsed.
type ArgsFunc func(owner common.Address, amounts map[string]*big.Int) []any

// ActionRequest describes one write before its amounts are validated.
type ActionRequest struct {
	Kind         domain.ActionKind
	Contract     common.Address
	ABI          *abi.ABI
	Method       string
	Counterparty *common.Address
	Amounts      []AmountInput
	Args         ArgsFunc
	ValueFrom    string   // amount sent as native value, by name
	Value        *big.Int // fixed native value, e.g. a mint price
}

// Dispatcher turns validated user requests into single contract writes. It
// holds at most one active PendingAction.
type Dispatcher struct {
	gateway ports.ContractGateway
	session ports.WalletSession
	tracker *Tracker
	metrics *metrics.OrchestratorMetrics
	log     zerolog.Logger

	mu      sync.Mutex
	current *domain.PendingAction
	done    chan struct{}
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	gateway ports.ContractGateway,
	session ports.WalletSession,
	tracker *Tracker,
	m *metrics.OrchestratorMetrics,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		gateway: gateway,
		session: session,
		tracker: tracker,
		metrics: m,
		log:     log,
	}
}

// Submit validates req and issues exactly one write. Validation failures
// return before any network call. A synchronous wallet or network rejection
// returns the Failed action together with the error. On acceptance the
// action is tracked in the background; use Await for the outcome.
func (d *Dispatcher) Submit(ctx context.Context, req ActionRequest) (*domain.PendingAction, error) {
	owner, ok := d.session.Account()
	if !ok {
		return nil, apperror.ErrNotConnected()
	}

	d.mu.Lock()
	if d.current != nil && d.current.IsActive() {
		d.mu.Unlock()
		return nil, apperror.ErrActionBusy()
	}

	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}

	value := req.Value
	if req.ValueFrom != "" {
		value = amounts[req.ValueFrom]
	}

	action := &domain.PendingAction{
		ID:           uuid.New(),
		Kind:         req.Kind,
		Contract:     req.Contract,
		Counterparty: req.Counterparty,
		Amounts:      amounts,
		Value:        value,
		State:        domain.ActionIdle,
	}
	if err := action.Transition(domain.ActionSubmitting, time.Now()); err != nil {
		d.mu.Unlock()
		return nil, apperror.InternalError(err)
	}
	done := make(chan struct{})
	d.current, d.done = action, done
	d.mu.Unlock()
	d.metrics.ObserveAction(string(action.Kind), string(action.State))

	var args []any
	if req.Args != nil {
		args = req.Args(owner, amounts)
	}
	txRef, writeErr := d.gateway.Write(ctx, ports.ContractCall{
		Contract: req.Contract,
		ABI:      req.ABI,
		Method:   req.Method,
		Args:     args,
		Value:    value,
	})

	d.mu.Lock()
	if writeErr != nil {
		_ = action.Fail(writeErr, time.Now())
		snapshot := action.Clone()
		close(done)
		d.mu.Unlock()

		d.metrics.ObserveAction(string(snapshot.Kind), string(snapshot.State))
		d.log.Warn().Err(writeErr).Str("kind", string(req.Kind)).Msg("write rejected")
		return snapshot, writeErr
	}
	_ = action.Accept(txRef, time.Now())
	snapshot := action.Clone()
	d.mu.Unlock()

	d.metrics.ObserveAction(string(snapshot.Kind), string(snapshot.State))
	d.log.Info().
		Str("kind", string(req.Kind)).
		Str("tx", txRef.Hex()).
		Msg("action submitted")

	go d.track(ctx, action, txRef, done)
	return snapshot, nil
}

func (d *Dispatcher) track(ctx context.Context, action *domain.PendingAction, txRef common.Hash, done chan struct{}) {
	defer close(done)

	err := d.tracker.Outcome(ctx, txRef)

	d.mu.Lock()
	if err != nil {
		_ = action.Fail(err, time.Now())
	} else {
		_ = action.Transition(domain.ActionConfirmed, time.Now())
	}
	snapshot := action.Clone()
	d.mu.Unlock()

	d.metrics.ObserveAction(string(snapshot.Kind), string(snapshot.State))
	if err != nil {
		d.log.Warn().Err(err).Str("tx", snapshot.TxRef.Hex()).Msg("action failed")
		return
	}
	d.log.Info().Str("tx", snapshot.TxRef.Hex()).Msg("action confirmed")
	d.tracker.Confirmed(ctx, *snapshot)
}

// Current returns a copy of the latest action, nil before the first submit.
func (d *Dispatcher) Current() *domain.PendingAction {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	return d.current.Clone()
}

// Await blocks until the latest action is terminal or ctx is done.
func (d *Dispatcher) Await(ctx context.Context) (*domain.PendingAction, error) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil, nil
	}

	select {
	case <-done:
		return d.Current(), nil
	case <-ctx.Done():
		return d.Current(), ctx.Err()
	}
}

func parseAmounts(inputs []AmountInput) (map[string]*big.Int, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make(map[string]*big.Int, len(inputs))
	for _, in := range inputs {
		v, err := units.ToBaseUnits(units.Sanitize(in.Raw, in.Decimals), in.Decimals)
		if err != nil || v.Sign() <= 0 {
			return nil, apperror.ErrInvalidAmount()
		}
		out[in.Name] = v
	}
	return out, nil
}
