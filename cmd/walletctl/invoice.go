package main

import (
	"fmt"

	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/units"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var (
	apiTokenFlag = cli.StringFlag{
		Name:    "api-token",
		Usage:   "payee JWT for the invoice API",
		EnvVars: []string{"W3O_API_TOKEN"},
	}
	invoiceFlag = cli.StringFlag{
		Name:     "invoice",
		Usage:    "invoice id",
		Required: true,
	}
)

var invoiceCreateCommand = cli.Command{
	Name:  "invoice-create",
	Usage: "Create a pay-link invoice (needs --api-token)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "receiver", Usage: "receiver address", Required: true},
		&cli.StringFlag{Name: "receiver-name"},
		&amountFlag,
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "idempotency-key", Usage: "retry-safe key; repeats return the first invoice"},
	},
	Action: invoiceCreateAction,
}

var payCommand = cli.Command{
	Name:   "pay",
	Usage:  "Pay an invoice with an exact token transfer and verify it",
	Flags:  []cli.Flag{&invoiceFlag},
	Action: payAction,
}

var verifyCommand = cli.Command{
	Name:  "verify",
	Usage: "Retry verification of a transfer that was already sent",
	Flags: []cli.Flag{
		&invoiceFlag,
		&cli.StringFlag{Name: "tx", Usage: "transaction hash", Required: true},
	},
	Action: verifyAction,
}

func invoiceCreateAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	req := ports.CreateInvoiceRequest{
		ReceiverAddress: c.String("receiver"),
		Amount:          units.Sanitize(c.String(amountFlag.Name), e.payToken.Decimals),
		IdempotencyKey:  c.String("idempotency-key"),
	}
	if s := c.String("receiver-name"); s != "" {
		req.ReceiverName = &s
	}
	if s := c.String("description"); s != "" {
		req.Description = &s
	}

	id, err := e.store.CreateInvoice(c.Context, req)
	if err != nil {
		return err
	}
	fmt.Println(row("invoice", id.String()))
	return nil
}

func payAction(c *cli.Context) error {
	id, err := uuid.Parse(c.String(invoiceFlag.Name))
	if err != nil {
		return apperror.ErrNotFound("invoice")
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}

	inv, err := e.store.GetInvoice(c.Context, id)
	if err != nil {
		return err
	}
	fmt.Println(renderInvoice(inv))
	if inv.IsPaid() {
		return apperror.ErrInvoiceAlreadyPaid()
	}

	confirmed, err := confirm(c,
		fmt.Sprintf("Pay %s %s?", inv.Amount, inv.TokenSymbol),
		"Receiver "+inv.ReceiverAddress+". Transfers cannot be undone.",
	)
	if err != nil {
		return err
	}

	outcome, err := e.payer.Pay(c.Context, id, confirmed)
	if outcome != nil {
		fmt.Println(renderOutcome(outcome, e.cfg.Chain.ExplorerTxURL))
	}
	return err
}

func verifyAction(c *cli.Context) error {
	id, err := uuid.Parse(c.String(invoiceFlag.Name))
	if err != nil {
		return apperror.ErrNotFound("invoice")
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}

	outcome, err := e.payer.RetryVerification(c.Context, id, c.String("tx"))
	if outcome != nil {
		fmt.Println(renderOutcome(outcome, e.cfg.Chain.ExplorerTxURL))
	}
	return err
}
