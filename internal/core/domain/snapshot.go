package domain

import (
	"math/big"
	"time"

	"web3-orchestrator/pkg/units"

	"github.com/ethereum/go-ethereum/common"
)

// Reading is one scalar read from the chain. A failed read keeps its error and
// renders as the unavailable marker instead of failing its siblings.
type Reading struct {
	Raw      *big.Int `json:"raw,omitempty"`
	Decimals int      `json:"decimals"`
	Err      error    `json:"-"`
}

// Available reports whether the read succeeded.
func (r Reading) Available() bool {
	return r.Err == nil && r.Raw != nil
}

// Display renders the reading for humans.
func (r Reading) Display() string {
	if !r.Available() {
		return units.Unavailable
	}
	return units.FormatForDisplay(r.Raw, r.Decimals)
}

// Position is the collateralized-position view of the engine for one wallet.
type Position struct {
	CollateralValueUSD Reading `json:"collateral_value_usd"`
	MintedDebt         Reading `json:"minted_debt"`
	HealthFactor       Reading `json:"health_factor"`
}

// HealthFactorDisplay renders the health factor with three decimals.
func (p Position) HealthFactorDisplay() string {
	if !p.HealthFactor.Available() {
		return units.Unavailable
	}
	return units.FormatHealthFactor(p.HealthFactor.Raw)
}

// AccountSnapshot is the aggregated read state for one wallet. It is rebuilt
// wholesale on every refresh and never patched.
type AccountSnapshot struct {
	Wallet     common.Address     `json:"wallet"`
	ChainID    int64              `json:"chain_id"`
	Native     Reading            `json:"native"`
	Balances   map[string]Reading `json:"balances"`   // by token symbol
	Allowances map[string]Reading `json:"allowances"` // by AllowanceKey
	Position   *Position          `json:"position,omitempty"`
	TakenAt    time.Time          `json:"taken_at"`
	FirstErr   error              `json:"-"`
}

// AllowanceKey names the allowance of token granted to spender.
func AllowanceKey(symbol, spender string) string {
	return symbol + "->" + spender
}

// Balance returns the reading for symbol, unavailable when it was never read.
func (s *AccountSnapshot) Balance(symbol string) Reading {
	if r, ok := s.Balances[symbol]; ok {
		return r
	}
	return Reading{}
}

// Allowance returns the allowance reading of symbol granted to spender.
func (s *AccountSnapshot) Allowance(symbol, spender string) Reading {
	if r, ok := s.Allowances[AllowanceKey(symbol, spender)]; ok {
		return r
	}
	return Reading{}
}
