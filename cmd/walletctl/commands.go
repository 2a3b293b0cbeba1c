package main

import (
	"errors"
	"fmt"
	"strings"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/service"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/units"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

var (
	amountFlag = cli.StringFlag{
		Name:     "amount",
		Usage:    "human decimal amount, e.g. 1.5 (commas and stray characters are dropped)",
		Required: true,
	}
	tokenFlag = cli.StringFlag{
		Name:  "token",
		Usage: "collateral, stable, pay, or an ERC-20 address",
		Value: "pay",
	}
)

var snapshotCommand = cli.Command{
	Name:   "snapshot",
	Usage:  "Show balances, allowances and the position of the wallet",
	Action: snapshotAction,
}

var sanitizeCommand = cli.Command{
	Name:      "sanitize",
	Usage:     "Show how a typed amount is normalized and converted",
	ArgsUsage: "<raw>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "decimals", Usage: "token decimals", Value: 18},
	},
	Action: sanitizeAction,
}

var wrapCommand = cli.Command{
	Name:   "wrap",
	Usage:  "Wrap native currency into collateral",
	Flags:  []cli.Flag{&amountFlag},
	Action: engineAction(func(e *env, amount string) service.ActionRequest { return e.catalog.Wrap(amount) }, collateralDecimals),
}

var depositCommand = cli.Command{
	Name:   "deposit",
	Usage:  "Deposit collateral into the engine (approve first)",
	Flags:  []cli.Flag{&amountFlag},
	Action: engineAction(func(e *env, amount string) service.ActionRequest { return e.catalog.Deposit(amount) }, collateralDecimals),
}

var mintCommand = cli.Command{
	Name:   "mint",
	Usage:  "Mint stablecoin against deposited collateral",
	Flags:  []cli.Flag{&amountFlag},
	Action: engineAction(func(e *env, amount string) service.ActionRequest { return e.catalog.Mint(amount) }, stableDecimals),
}

var repayCommand = cli.Command{
	Name:   "repay",
	Usage:  "Burn stablecoin to reduce debt (approve stable first)",
	Flags:  []cli.Flag{&amountFlag},
	Action: engineAction(func(e *env, amount string) service.ActionRequest { return e.catalog.Repay(amount) }, stableDecimals),
}

var redeemCommand = cli.Command{
	Name:   "redeem",
	Usage:  "Withdraw collateral from the engine",
	Flags:  []cli.Flag{&amountFlag},
	Action: engineAction(func(e *env, amount string) service.ActionRequest { return e.catalog.Redeem(amount) }, collateralDecimals),
}

var depositMintCommand = cli.Command{
	Name:  "deposit-mint",
	Usage: "Deposit collateral and mint stablecoin in one transaction",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "collateral", Usage: "collateral amount", Required: true},
		&cli.StringFlag{Name: "mint", Usage: "stablecoin amount", Required: true},
	},
	Action: depositMintAction,
}

var approveCommand = cli.Command{
	Name:  "approve",
	Usage: "Grant a spender an allowance (defaults to the engine)",
	Flags: []cli.Flag{
		&tokenFlag,
		&amountFlag,
		&cli.StringFlag{Name: "spender", Usage: "spender address; defaults to the engine"},
	},
	Action: approveAction,
}

var transferCommand = cli.Command{
	Name:  "transfer",
	Usage: "Send tokens to an address",
	Flags: []cli.Flag{
		&tokenFlag,
		&amountFlag,
		&cli.StringFlag{Name: "to", Usage: "recipient address", Required: true},
	},
	Action: transferAction,
}

var mintNFTCommand = cli.Command{
	Name:  "mint-nft",
	Usage: "Mint an NFT at the current mint price",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "image", Usage: "http(s), ipfs:// or data:image URL"},
	},
	Action: mintNFTAction,
}

var galleryCommand = cli.Command{
	Name:  "gallery",
	Usage: "List NFTs owned by the wallet",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: service.DefaultGalleryLimit},
	},
	Action: galleryAction,
}

func collateralDecimals(e *env) int { return e.set.Collateral.Decimals }
func stableDecimals(e *env) int     { return e.set.Stable.Decimals }

func snapshotAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	snap, err := e.snapshots.Refresh(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(renderSnapshot(snap))
	return nil
}

func sanitizeAction(c *cli.Context) error {
	raw := strings.Join(c.Args().Slice(), " ")
	decimals := c.Int("decimals")

	clean := units.Sanitize(raw, decimals)
	fmt.Println(row("input", fmt.Sprintf("%q", raw)))
	fmt.Println(row("sanitized", fmt.Sprintf("%q", clean)))

	v, err := units.ToBaseUnits(clean, decimals)
	if err != nil {
		fmt.Println(row("base units", warnStyle.Render(err.Error())))
		return nil
	}
	fmt.Println(row("base units", v.String()))
	fmt.Println(row("display", units.FormatForDisplay(v, decimals)))
	return nil
}

// engineAction builds a single-amount command. The typed amount goes through
// the same sanitizer an input field would apply.
func engineAction(build func(e *env, amount string) service.ActionRequest, decimals func(e *env) int) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		amount := units.Sanitize(c.String(amountFlag.Name), decimals(e))
		return submitAndWait(c, e, build(e, amount))
	}
}

func depositMintAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	collateral := units.Sanitize(c.String("collateral"), e.set.Collateral.Decimals)
	mint := units.Sanitize(c.String("mint"), e.set.Stable.Decimals)
	return submitAndWait(c, e, e.catalog.DepositAndMint(collateral, mint))
}

func approveAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	token, err := resolveToken(c, e, c.String(tokenFlag.Name))
	if err != nil {
		return err
	}
	spender := e.set.Engine
	if s := c.String("spender"); s != "" {
		if !common.IsHexAddress(s) {
			return apperror.ErrInvalidAddress("spender")
		}
		spender = common.HexToAddress(s)
	}
	if spender == (common.Address{}) {
		return apperror.ErrInvalidAddress("spender")
	}

	amount := units.Sanitize(c.String(amountFlag.Name), token.Decimals)
	return submitAndWait(c, e, e.catalog.Approve(token, spender, amount))
}

func transferAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	token, err := resolveToken(c, e, c.String(tokenFlag.Name))
	if err != nil {
		return err
	}
	to := c.String("to")
	if !common.IsHexAddress(to) {
		return apperror.ErrInvalidAddress("to")
	}
	recipient := common.HexToAddress(to)
	amount := units.Sanitize(c.String(amountFlag.Name), token.Decimals)

	ok, err := confirm(c, "Send "+amount+" "+token.Symbol+"?", "Token "+token.Label()+"\nRecipient "+recipient.Hex())
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrConfirmationRequired()
	}
	return submitAndWait(c, e, e.catalog.Transfer(token, recipient, amount))
}

func mintNFTAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	req, err := e.catalog.MintNFT(c.Context, c.String("name"), c.String("description"), c.String("image"))
	if err != nil {
		return err
	}
	fmt.Println(row("mint price", units.FormatForDisplay(req.Value, domain.NativeDecimals)+" "+nativeSymbol))
	return submitAndWait(c, e, req)
}

func galleryAction(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	owner, ok := e.session.Account()
	if !ok {
		return apperror.ErrNotConnected()
	}
	g, err := e.gallery.Owned(c.Context, owner, c.Int("limit"))
	if err != nil {
		return apperror.ErrReadFailed("gallery", err)
	}
	fmt.Println(renderGallery(g))
	return nil
}

// submitAndWait submits req, waits for the receipt and prints the refreshed
// snapshot once the action is confirmed.
func submitAndWait(c *cli.Context, e *env, req service.ActionRequest) error {
	txURL := e.cfg.Chain.ExplorerTxURL

	action, err := e.dispatcher.Submit(c.Context, req)
	if err != nil {
		if action != nil {
			fmt.Println(renderAction(action, txURL))
		}
		return err
	}
	fmt.Println(renderAction(action, txURL))

	final, err := e.dispatcher.Await(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(renderAction(final, txURL))
	if final.State == domain.ActionFailed {
		if final.Err != nil {
			return final.Err
		}
		return errors.New(final.FailureReason)
	}

	fmt.Println(renderSnapshot(e.snapshots.Current()))
	return nil
}

func resolveToken(c *cli.Context, e *env, name string) (domain.Token, error) {
	var tok domain.Token
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "collateral", "weth":
		tok = e.set.Collateral
	case "stable", "tsc":
		tok = e.set.Stable
	case "pay", "", strings.ToLower(e.payToken.Symbol):
		tok = e.payToken
	default:
		if !common.IsHexAddress(name) {
			return domain.Token{}, apperror.ErrInvalidAddress("token")
		}
		addr := common.HexToAddress(name)
		tok = e.snapshots.TokenInfo(c.Context, addr, domain.Token{Address: addr, Symbol: "TOKEN", Decimals: 18})
	}
	if tok.Address == (common.Address{}) {
		return domain.Token{}, apperror.ErrInvalidAddress("token " + name + " is not configured")
	}
	return tok, nil
}

// confirm asks a yes/no question unless --yes was given.
func confirm(c *cli.Context, title, description string) (bool, error) {
	if c.Bool(yesFlag.Name) {
		return true, nil
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
