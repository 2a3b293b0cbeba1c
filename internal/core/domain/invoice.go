package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// InvoiceStatus is the settlement state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "UNPAID"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

// Invoice is a pay-link request for an exact ERC-20 transfer.
type Invoice struct {
	ID              uuid.UUID     `json:"id"`
	OwnerID         uuid.UUID     `json:"-"`
	Status          InvoiceStatus `json:"status"`
	ReceiverAddress string        `json:"receiver_address"`
	ReceiverName    *string       `json:"receiver_name,omitempty"`
	ChainID         int64         `json:"chain_id"`
	TokenAddress    string        `json:"token_address"`
	TokenSymbol     string        `json:"token_symbol"`
	TokenDecimals   int           `json:"token_decimals"`
	Amount          string        `json:"amount"`       // human decimal, e.g. "20"
	AmountUnits     string        `json:"amount_units"` // exact base units as a decimal integer
	Description     *string       `json:"description,omitempty"`
	TxHash          *string       `json:"tx_hash,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}

// PaymentToken returns the token the invoice is denominated in.
func (i *Invoice) PaymentToken() Token {
	return Token{
		Address:  common.HexToAddress(i.TokenAddress),
		Symbol:   i.TokenSymbol,
		Decimals: i.TokenDecimals,
	}
}

// Receiver returns the receiver as an address.
func (i *Invoice) Receiver() common.Address {
	return common.HexToAddress(i.ReceiverAddress)
}

// Units parses AmountUnits.
func (i *Invoice) Units() (*big.Int, error) {
	v, ok := new(big.Int).SetString(i.AmountUnits, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invoice %s: bad amount_units %q", i.ID, i.AmountUnits)
	}
	return v, nil
}

// MarkPaid settles the invoice. Only UNPAID -> PAID is allowed.
func (i *Invoice) MarkPaid(txHash string, at time.Time) error {
	if i.Status != InvoiceStatusUnpaid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, InvoiceStatusPaid)
	}
	i.Status = InvoiceStatusPaid
	i.TxHash = &txHash
	i.PaidAt = &at
	return nil
}

// InvoiceStats aggregates an owner's invoices.
type InvoiceStats struct {
	Total           int64  `json:"total"`
	Paid            int64  `json:"paid"`
	Unpaid          int64  `json:"unpaid"`
	PaidVolumeUnits string `json:"paid_volume_units"`
}

// PaymentVerdict is the authoritative answer to a verify request.
type PaymentVerdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}
