package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

const defaultPollInterval = 2 * time.Second

// Backend is the subset of *ethclient.Client the gateway uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Signer is the wallet side of a gateway: who sends, on which chain, and how
// transactions get signed.
type Signer interface {
	Account() (common.Address, bool)
	ChainID() int64
	Backend() (Backend, error)
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Gateway implements ports.ContractGateway over an Ethereum JSON-RPC backend.
type Gateway struct {
	signer       Signer
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewGateway creates a gateway that reads and writes through signer's backend.
func NewGateway(signer Signer, pollInterval time.Duration, log zerolog.Logger) *Gateway {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Gateway{signer: signer, pollInterval: pollInterval, log: log}
}

// Read performs an eth_call and unpacks the outputs.
func (g *Gateway) Read(ctx context.Context, call ports.ContractCall) ([]any, error) {
	backend, err := g.signer.Backend()
	if err != nil {
		return nil, err
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", call.Method, err)
	}

	msg := ethereum.CallMsg{To: &call.Contract, Data: data}
	if from, ok := g.signer.Account(); ok {
		msg.From = from
	}
	out, err := backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.Method, err)
	}
	vals, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Method, err)
	}
	return vals, nil
}

// Write builds an EIP-1559 transaction, has the signer sign it and broadcasts
// it. It never retries.
func (g *Gateway) Write(ctx context.Context, call ports.ContractCall) (common.Hash, error) {
	from, ok := g.signer.Account()
	if !ok {
		return common.Hash{}, apperror.ErrNotConnected()
	}
	backend, err := g.signer.Backend()
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(err)
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(fmt.Errorf("pack %s: %w", call.Method, err))
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(fmt.Errorf("nonce: %w", err))
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(fmt.Errorf("gas tip: %w", err))
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(fmt.Errorf("head: %w", err))
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &call.Contract,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(g.signer.ChainID()),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &call.Contract,
		Value:     value,
		Data:      data,
	})
	signed, err := g.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, apperror.ErrWalletRejected(err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, apperror.ErrWriteFailed(err)
	}

	g.log.Debug().
		Str("method", call.Method).
		Str("contract", call.Contract.Hex()).
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Msg("transaction broadcast")
	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (g *Gateway) WaitForReceipt(ctx context.Context, txRef common.Hash) (*ports.Receipt, error) {
	backend, err := g.signer.Backend()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, txRef)
		switch {
		case err == nil && receipt != nil:
			out := &ports.Receipt{
				TxRef:   txRef,
				Success: receipt.Status == types.ReceiptStatusSuccessful,
				Logs:    receipt.Logs,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("receipt %s: %w", txRef.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NativeBalance returns the latest native balance of account.
func (g *Gateway) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := g.signer.Backend()
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, nil)
}
