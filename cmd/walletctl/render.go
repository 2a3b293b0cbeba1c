package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/service"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/units"

	"github.com/charmbracelet/lipgloss"
)

var (
	subtle  = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}
	accent  = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	good    = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	bad     = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F6D"}
	warning = lipgloss.AdaptiveColor{Light: "#C28800", Dark: "#F2C14E"}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(subtle).Width(24)
	valueStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(good).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(bad).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(warning)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func sortedKeys(m map[string]domain.Reading) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderSnapshot(snap *domain.AccountSnapshot) string {
	if snap == nil {
		return warnStyle.Render("no snapshot (wallet not connected)")
	}

	lines := []string{
		titleStyle.Render("Account"),
		row("wallet", snap.Wallet.Hex()),
		row("chain", fmt.Sprintf("%d", snap.ChainID)),
		row(nativeSymbol, snap.Native.Display()),
	}
	if len(snap.Balances) > 0 {
		lines = append(lines, "", titleStyle.Render("Balances"))
		for _, sym := range sortedKeys(snap.Balances) {
			lines = append(lines, row(sym, snap.Balances[sym].Display()))
		}
	}
	if len(snap.Allowances) > 0 {
		lines = append(lines, "", titleStyle.Render("Allowances"))
		for _, key := range sortedKeys(snap.Allowances) {
			lines = append(lines, row(key, snap.Allowances[key].Display()))
		}
	}
	if p := snap.Position; p != nil {
		lines = append(lines,
			"", titleStyle.Render("Position"),
			row("collateral (USD)", p.CollateralValueUSD.Display()),
			row("minted", p.MintedDebt.Display()),
			row("health factor", p.HealthFactorDisplay()),
		)
	}
	if snap.FirstErr != nil {
		lines = append(lines, "", warnStyle.Render("some fields unavailable: "+snap.FirstErr.Error()))
	}
	lines = append(lines, "", lipgloss.NewStyle().Foreground(subtle).Render("taken "+snap.TakenAt.Format("15:04:05")))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderAction(a *domain.PendingAction, txURL string) string {
	if a == nil {
		return ""
	}
	state := string(a.State)
	switch a.State {
	case domain.ActionConfirmed:
		state = okStyle.Render(state)
	case domain.ActionFailed:
		state = errStyle.Render(state)
	default:
		state = warnStyle.Render(state)
	}

	lines := []string{
		row("action", string(a.Kind)),
		row("state", state),
	}
	if a.TxRef != nil {
		lines = append(lines, row("tx", a.TxRef.Hex()))
		if txURL != "" {
			lines = append(lines, row("explorer", txURL+a.TxRef.Hex()))
		}
	}
	if a.FailureReason != "" {
		lines = append(lines, row("reason", a.FailureReason))
	}
	return strings.Join(lines, "\n")
}

func renderInvoice(inv *domain.Invoice) string {
	lines := []string{
		titleStyle.Render("Invoice " + inv.ID.String()),
		row("status", string(inv.Status)),
		row("receiver", inv.ReceiverAddress),
	}
	if inv.ReceiverName != nil && *inv.ReceiverName != "" {
		lines = append(lines, row("receiver name", *inv.ReceiverName))
	}
	lines = append(lines,
		row("amount", inv.Amount+" "+inv.TokenSymbol),
		row("chain", fmt.Sprintf("%d", inv.ChainID)),
	)
	if inv.Description != nil && *inv.Description != "" {
		lines = append(lines, row("description", *inv.Description))
	}
	if inv.TxHash != nil {
		lines = append(lines, row("tx", *inv.TxHash))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderOutcome(o *service.PaymentOutcome, txURL string) string {
	lines := []string{row("invoice", o.InvoiceID.String())}
	if o.TxRef != "" {
		lines = append(lines, row("tx", o.TxRef))
		if txURL != "" {
			lines = append(lines, row("explorer", txURL+o.TxRef))
		}
	}
	switch {
	case o.Verified:
		lines = append(lines, row("payment", okStyle.Render("VERIFIED")))
	case o.TxRef != "":
		lines = append(lines,
			row("payment", warnStyle.Render("SENT, NOT VERIFIED")),
			row("reason", o.Reason),
			lipgloss.NewStyle().Foreground(subtle).Render("retry with: walletctl verify --invoice "+o.InvoiceID.String()+" --tx "+o.TxRef),
		)
	default:
		lines = append(lines, row("payment", errStyle.Render("NOT SENT")), row("reason", o.Reason))
	}
	return strings.Join(lines, "\n")
}

func renderGallery(g *service.Gallery) string {
	if len(g.Items) == 0 {
		return warnStyle.Render("no NFTs owned")
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("NFTs (%d of %d)", len(g.Items), g.Total))}
	for _, item := range g.Items {
		image := item.Meta.Image
		if image == "" {
			image = units.Unavailable
		}
		lines = append(lines, row("#"+item.TokenID.String(), item.Meta.Name), row("", image))
	}
	return strings.Join(lines, "\n")
}

// renderError prefixes the error with its category so the user knows
// whether to fix input, retry, or check the wallet.
func renderError(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return errStyle.Render(fmt.Sprintf("[%s] %s", apperror.Kind(err), appErr.Message))
	}
	var parseErr *apperror.ParseError
	if errors.As(err, &parseErr) {
		return errStyle.Render(fmt.Sprintf("[%s] %s", apperror.CategoryValidation, parseErr.Error()))
	}
	return errStyle.Render("error: " + err.Error())
}
