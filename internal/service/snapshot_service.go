package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// AllowanceRead names an allowance the snapshot tracks.
type AllowanceRead struct {
	Token   domain.Token
	Spender common.Address
	Label   string // spender name used in domain.AllowanceKey
}

// SnapshotLayout is what a snapshot reads for a wallet.
type SnapshotLayout struct {
	NativeSymbol string
	Tokens       []domain.Token
	Allowances   []AllowanceRead
	Engine       *common.Address // position reads are skipped when nil
}

type fieldRead struct {
	field string
	dst   *domain.Reading
}

// SnapshotServiceImpl is the read-state aggregator for one wallet view.
type SnapshotServiceImpl struct {
	gateway ports.ContractGateway
	session ports.WalletSession
	layout  SnapshotLayout
	metrics *metrics.OrchestratorMetrics
	log     zerolog.Logger

	current   atomic.Pointer[domain.AccountSnapshot]
	refreshMu sync.Mutex
	now       func() time.Time
}

// NewSnapshotService creates a new SnapshotServiceImpl.
func NewSnapshotService(
	gateway ports.ContractGateway,
	session ports.WalletSession,
	layout SnapshotLayout,
	m *metrics.OrchestratorMetrics,
	log zerolog.Logger,
) *SnapshotServiceImpl {
	return &SnapshotServiceImpl{
		gateway: gateway,
		session: session,
		layout:  layout,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Snapshot reads every field of the layout for wallet concurrently. A failed
// field is left unavailable and never fails its siblings; FirstErr carries the
// first failure in layout order.
func (s *SnapshotServiceImpl) Snapshot(ctx context.Context, wallet common.Address) *domain.AccountSnapshot {
	snap := &domain.AccountSnapshot{
		Wallet:     wallet,
		ChainID:    s.session.ChainID(),
		Native:     domain.Reading{Decimals: domain.NativeDecimals},
		Balances:   make(map[string]domain.Reading, len(s.layout.Tokens)),
		Allowances: make(map[string]domain.Reading, len(s.layout.Allowances)),
	}

	balances := make([]domain.Reading, len(s.layout.Tokens))
	allowances := make([]domain.Reading, len(s.layout.Allowances))
	var position *domain.Position
	if s.layout.Engine != nil {
		position = &domain.Position{
			CollateralValueUSD: domain.Reading{Decimals: 18},
			MintedDebt:         domain.Reading{Decimals: 18},
			HealthFactor:       domain.Reading{Decimals: 18},
		}
	}

	order := []fieldRead{{field: "native", dst: &snap.Native}}

	var wg conc.WaitGroup
	wg.Go(func() {
		snap.Native.Raw, snap.Native.Err = s.gateway.NativeBalance(ctx, wallet)
	})

	for i, tok := range s.layout.Tokens {
		balances[i].Decimals = tok.Decimals
		order = append(order, fieldRead{field: "balance:" + tok.Symbol, dst: &balances[i]})
		wg.Go(func() {
			balances[i].Raw, balances[i].Err = s.readUint(ctx, tok.Address, contracts.ERC20, "balanceOf", wallet)
		})
	}

	for i, a := range s.layout.Allowances {
		allowances[i].Decimals = a.Token.Decimals
		order = append(order, fieldRead{field: "allowance:" + domain.AllowanceKey(a.Token.Symbol, a.Label), dst: &allowances[i]})
		wg.Go(func() {
			allowances[i].Raw, allowances[i].Err = s.readUint(ctx, a.Token.Address, contracts.ERC20, "allowance", wallet, a.Spender)
		})
	}

	if position != nil {
		engine := *s.layout.Engine
		order = append(order,
			fieldRead{field: "position:collateral", dst: &position.CollateralValueUSD},
			fieldRead{field: "position:minted", dst: &position.MintedDebt},
			fieldRead{field: "position:health_factor", dst: &position.HealthFactor},
		)
		wg.Go(func() {
			minted, collateral, err := s.readAccountInformation(ctx, engine, wallet)
			position.MintedDebt.Raw, position.MintedDebt.Err = minted, err
			position.CollateralValueUSD.Raw, position.CollateralValueUSD.Err = collateral, err
		})
		wg.Go(func() {
			position.HealthFactor.Raw, position.HealthFactor.Err = s.readUint(ctx, engine, contracts.Engine, "getHealthFactor", wallet)
		})
	}

	wg.Wait()

	for i, tok := range s.layout.Tokens {
		snap.Balances[tok.Symbol] = balances[i]
	}
	for i, a := range s.layout.Allowances {
		snap.Allowances[domain.AllowanceKey(a.Token.Symbol, a.Label)] = allowances[i]
	}
	snap.Position = position

	for _, f := range order {
		if f.dst.Err == nil {
			continue
		}
		f.dst.Err = apperror.ErrReadFailed(f.field, f.dst.Err)
		s.metrics.ObserveReadFailure(f.field)
		if snap.FirstErr == nil {
			snap.FirstErr = f.dst.Err
		}
	}
	snap.TakenAt = s.now()

	if snap.FirstErr != nil {
		s.log.Warn().Err(snap.FirstErr).Str("wallet", wallet.Hex()).Msg("snapshot has unavailable fields")
	}
	return snap
}

// Refresh rebuilds the snapshot of the connected wallet and publishes it in
// one swap. Readers of Current never observe a partially built snapshot.
func (s *SnapshotServiceImpl) Refresh(ctx context.Context) (*domain.AccountSnapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	wallet, ok := s.session.Account()
	for {
		if !ok {
			s.current.Store(nil)
			return nil, apperror.ErrNotConnected()
		}
		snap := s.Snapshot(ctx, wallet)

		// The session may have changed while the reads were in flight.
		now, stillOK := s.session.Account()
		if stillOK && now == wallet {
			s.current.Store(snap)
			return snap, nil
		}
		s.log.Debug().Str("wallet", wallet.Hex()).Msg("session changed during refresh, dropping snapshot")
		wallet, ok = now, stillOK
	}
}

// Current returns the last published snapshot, nil before the first refresh.
func (s *SnapshotServiceImpl) Current() *domain.AccountSnapshot {
	return s.current.Load()
}

// Watch refreshes on every session change until ctx is done. Disconnects
// clear the published snapshot.
func (s *SnapshotServiceImpl) Watch(ctx context.Context) {
	events, cancel := s.session.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Connected {
				s.clear()
				continue
			}
			if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, apperror.ErrNotConnected()) {
				s.log.Warn().Err(err).Msg("refresh after session change failed")
			}
		}
	}
}

// clear drops the published snapshot once no refresh is in flight.
func (s *SnapshotServiceImpl) clear() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.current.Store(nil)
}

// TokenInfo reads name, symbol and decimals of an ERC-20. Unreadable fields
// fall back to the supplied defaults.
func (s *SnapshotServiceImpl) TokenInfo(ctx context.Context, address common.Address, fallback domain.Token) domain.Token {
	tok := fallback
	tok.Address = address

	var wg conc.WaitGroup
	wg.Go(func() {
		out, err := s.gateway.Read(ctx, ports.ContractCall{Contract: address, ABI: contracts.ERC20, Method: "name"})
		if err != nil || len(out) == 0 {
			return
		}
		if name, ok := out[0].(string); ok && name != "" {
			tok.Name = name
		}
	})
	wg.Go(func() {
		out, err := s.gateway.Read(ctx, ports.ContractCall{Contract: address, ABI: contracts.ERC20, Method: "symbol"})
		if err != nil || len(out) == 0 {
			return
		}
		if sym, ok := out[0].(string); ok && sym != "" {
			tok.Symbol = sym
		}
	})
	var decimals int
	decimalsOK := false
	wg.Go(func() {
		out, err := s.gateway.Read(ctx, ports.ContractCall{Contract: address, ABI: contracts.ERC20, Method: "decimals"})
		if err != nil || len(out) == 0 {
			return
		}
		if d, ok := out[0].(uint8); ok {
			decimals, decimalsOK = int(d), true
		}
	})
	wg.Wait()

	if decimalsOK {
		tok.Decimals = decimals
	}
	return tok
}

func (s *SnapshotServiceImpl) readUint(ctx context.Context, contract common.Address, parsed *abi.ABI, method string, args ...any) (*big.Int, error) {
	out, err := s.gateway.Read(ctx, ports.ContractCall{Contract: contract, ABI: parsed, Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	return firstUint(out, method)
}

func (s *SnapshotServiceImpl) readAccountInformation(ctx context.Context, engine, wallet common.Address) (minted, collateral *big.Int, err error) {
	out, err := s.gateway.Read(ctx, ports.ContractCall{
		Contract: engine,
		ABI:      contracts.Engine,
		Method:   "getAccountInformation",
		Args:     []any{wallet},
	})
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("getAccountInformation: %d outputs", len(out))
	}
	if minted, err = firstUint(out[:1], "totalMinted"); err != nil {
		return nil, nil, err
	}
	if collateral, err = firstUint(out[1:], "collateralValueUsd"); err != nil {
		return nil, nil, err
	}
	return minted, collateral, nil
}

func firstUint(out []any, name string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", name)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", name, out[0])
	}
	return v, nil
}
