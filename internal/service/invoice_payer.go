package service

import (
	"context"
	"errors"

	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentOutcome is the client-side result of paying an invoice. A set TxRef
// with Verified false is the "paid but unverified" state: the transfer went
// out and only verification may be retried.
type PaymentOutcome struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	TxRef     string    `json:"tx_ref,omitempty"`
	Verified  bool      `json:"verified"`
	Reason    string    `json:"reason,omitempty"`
}

// InvoicePayer settles invoices from the connected wallet.
type InvoicePayer struct {
	store      ports.InvoiceStore
	session    ports.WalletSession
	dispatcher *Dispatcher
	catalog    *ActionCatalog
	log        zerolog.Logger
}

// NewInvoicePayer creates a new InvoicePayer.
func NewInvoicePayer(
	store ports.InvoiceStore,
	session ports.WalletSession,
	dispatcher *Dispatcher,
	catalog *ActionCatalog,
	log zerolog.Logger,
) *InvoicePayer {
	return &InvoicePayer{
		store:      store,
		session:    session,
		dispatcher: dispatcher,
		catalog:    catalog,
		log:        log,
	}
}

// Pay transfers exactly the invoice amount to its receiver and asks the store
// to verify it. confirmReceiver is the payer's acknowledgement of the
// receiver address. Each step runs only if the previous one succeeded; a
// verification failure returns the outcome together with the error.
func (p *InvoicePayer) Pay(ctx context.Context, invoiceID uuid.UUID, confirmReceiver bool) (*PaymentOutcome, error) {
	if _, ok := p.session.Account(); !ok {
		return nil, apperror.ErrNotConnected()
	}
	if !confirmReceiver {
		return nil, apperror.ErrConfirmationRequired()
	}

	inv, err := p.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.IsPaid() {
		return nil, apperror.ErrInvoiceAlreadyPaid()
	}
	amount, err := inv.Units()
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	if err := p.ensureChain(ctx, inv.ChainID); err != nil {
		return nil, err
	}

	action, err := p.dispatcher.Submit(ctx, p.catalog.TransferUnits(inv.PaymentToken(), inv.Receiver(), amount))
	if err != nil {
		return nil, err
	}

	txRef := action.TxRef.Hex()
	p.log.Info().
		Str("invoice_id", invoiceID.String()).
		Str("tx", txRef).
		Msg("invoice transfer submitted")
	return p.verify(ctx, invoiceID, txRef)
}

// RetryVerification re-runs verification for a transfer that already went
// out. It never submits a new transfer.
func (p *InvoicePayer) RetryVerification(ctx context.Context, invoiceID uuid.UUID, txRef string) (*PaymentOutcome, error) {
	return p.verify(ctx, invoiceID, txRef)
}

func (p *InvoicePayer) ensureChain(ctx context.Context, chainID int64) error {
	if p.session.ChainID() == chainID {
		return nil
	}
	if err := p.session.SwitchChain(ctx, chainID); err != nil {
		if errors.Is(err, ports.ErrSwitchUnsupported) {
			return apperror.ErrUnsupportedWallet()
		}
		return apperror.ErrWalletRejected(err)
	}
	return nil
}

func (p *InvoicePayer) verify(ctx context.Context, invoiceID uuid.UUID, txRef string) (*PaymentOutcome, error) {
	outcome := &PaymentOutcome{InvoiceID: invoiceID, TxRef: txRef}

	verdict, err := p.store.VerifyPayment(ctx, invoiceID, txRef)
	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			appErr = apperror.ErrVerifierUnreachable(err)
		}
		outcome.Reason = appErr.Message
		p.log.Warn().Err(err).Str("invoice_id", invoiceID.String()).Str("tx", txRef).Msg("verification unavailable")
		return outcome, appErr
	}
	if !verdict.OK {
		outcome.Reason = verdict.Reason
		return outcome, apperror.ErrVerificationFailed(verdict.Reason)
	}

	outcome.Verified = true
	return outcome, nil
}
