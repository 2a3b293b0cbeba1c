package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// Rejection reasons returned in a PaymentVerdict.
const (
	ReasonWrongChain      = "invoice is on a different chain"
	ReasonBadInvoice      = "invoice amount is invalid"
	ReasonReverted        = "transaction reverted"
	ReasonAmountMismatch  = "transfer amount does not match invoice"
	ReasonNoTransfer      = "no matching token transfer to receiver"
	ReasonAlreadyPaid     = "invoice already paid"
	ReasonTxUsedElsewhere = "transaction already settled another invoice"
)

// ErrTxPending is returned while a transaction is unknown or under-confirmed
// when the verify timeout expires.
var ErrTxPending = errors.New("transaction not yet mined or confirmed")

// EVMSettlementVerifier checks an invoice transfer against an Ethereum node.
type EVMSettlementVerifier struct {
	client        ports.EVMClient
	chainID       int64
	confirmations uint64
	pollInterval  time.Duration
	timeout       time.Duration
	log           zerolog.Logger
}

// NewEVMSettlementVerifier creates a verifier for chainID.
func NewEVMSettlementVerifier(
	client ports.EVMClient,
	chainID int64,
	confirmations uint64,
	pollInterval, timeout time.Duration,
	log zerolog.Logger,
) *EVMSettlementVerifier {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &EVMSettlementVerifier{
		client:        client,
		chainID:       chainID,
		confirmations: confirmations,
		pollInterval:  pollInterval,
		timeout:       timeout,
		log:           log,
	}
}

// Verify waits up to the verify timeout for txHash to be mined with enough
// confirmations, then requires a Transfer log from the invoice token to the
// receiver for exactly the invoice amount. A verdict is definitive; an error
// means the check may be retried.
func (v *EVMSettlementVerifier) Verify(ctx context.Context, inv *domain.Invoice, txHash string) (*domain.PaymentVerdict, error) {
	if inv.ChainID != v.chainID {
		return &domain.PaymentVerdict{Reason: ReasonWrongChain}, nil
	}
	amount, err := inv.Units()
	if err != nil {
		return &domain.PaymentVerdict{Reason: ReasonBadInvoice}, nil
	}

	receipt, err := v.awaitConfirmed(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &domain.PaymentVerdict{Reason: ReasonReverted}, nil
	}

	return matchTransfer(receipt.Logs, inv.PaymentToken().Address, inv.Receiver(), amount), nil
}

func (v *EVMSettlementVerifier) awaitConfirmed(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := v.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			ok, err := v.confirmed(ctx, receipt)
			if err != nil {
				return nil, err
			}
			if ok {
				return receipt, nil
			}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, ErrTxPending
			}
			return nil, fmt.Errorf("fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrTxPending
		case <-ticker.C:
		}
	}
}

func (v *EVMSettlementVerifier) confirmed(ctx context.Context, receipt *types.Receipt) (bool, error) {
	if v.confirmations <= 1 {
		return true, nil
	}
	header, err := v.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("fetch head: %w", err)
	}
	if header == nil || header.Number == nil || receipt.BlockNumber == nil {
		return false, fmt.Errorf("block metadata unavailable")
	}
	if header.Number.Cmp(receipt.BlockNumber) < 0 {
		return false, nil
	}
	have := new(big.Int).Sub(header.Number, receipt.BlockNumber)
	have.Add(have, big.NewInt(1))
	v.log.Debug().
		Str("tx", receipt.TxHash.Hex()).
		Str("confirmations", have.String()).
		Uint64("required", v.confirmations).
		Msg("waiting for confirmations")
	return have.Cmp(new(big.Int).SetUint64(v.confirmations)) >= 0, nil
}

func matchTransfer(logs []*types.Log, token, receiver common.Address, amount *big.Int) *domain.PaymentVerdict {
	reason := ReasonNoTransfer
	for _, l := range logs {
		if l == nil || l.Address != token || len(l.Topics) < 3 || l.Topics[0] != contracts.TransferEventID {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != receiver {
			continue
		}
		if new(big.Int).SetBytes(l.Data).Cmp(amount) == 0 {
			return &domain.PaymentVerdict{OK: true}
		}
		reason = ReasonAmountMismatch
	}
	return &domain.PaymentVerdict{Reason: reason}
}
