package ports

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractCall describes one contract function invocation.
type ContractCall struct {
	Contract common.Address
	ABI      *abi.ABI
	Method   string
	Args     []any
	Value    *big.Int // native value, writes only
}

// Receipt is the mined outcome of a write.
type Receipt struct {
	TxRef       common.Hash
	Success     bool
	BlockNumber uint64
	Logs        []*types.Log
}

// ContractGateway is the read/write boundary to deployed contracts.
// Reads are safe to retry; writes are never retried.
type ContractGateway interface {
	Read(ctx context.Context, call ContractCall) ([]any, error)
	// Write signs and broadcasts call and returns as soon as the network
	// accepted it.
	Write(ctx context.Context, call ContractCall) (common.Hash, error)
	// WaitForReceipt blocks until txRef is mined or ctx is done.
	WaitForReceipt(ctx context.Context, txRef common.Hash) (*Receipt, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

// ErrSwitchUnsupported is returned by SwitchChain when the wallet cannot
// change networks on request.
var ErrSwitchUnsupported = errors.New("wallet cannot switch chains programmatically")

// SessionEvent is emitted whenever the connected account or network changes.
type SessionEvent struct {
	Account   common.Address
	Connected bool
	ChainID   int64
}

// WalletSession exposes the connected wallet.
type WalletSession interface {
	// Account returns the connected address; ok is false when disconnected.
	Account() (addr common.Address, ok bool)
	ChainID() int64
	SwitchChain(ctx context.Context, chainID int64) error
	// Subscribe returns a channel of session changes and a cancel func that
	// closes it.
	Subscribe() (<-chan SessionEvent, func())
}

// EVMClient is the subset of an Ethereum RPC client the settlement verifier needs.
type EVMClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}
