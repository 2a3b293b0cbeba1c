package service

import (
	"context"
	"math/big"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/contracts"
	"web3-orchestrator/pkg/nftmeta"
	"web3-orchestrator/pkg/units"

	"github.com/ethereum/go-ethereum/common"
)

// Amount names used in ActionRequest.Amounts.
const (
	AmountPrimary = "amount"
	AmountMint    = "mint"
)

// ContractSet is the deployment the catalog targets.
type ContractSet struct {
	Engine     common.Address
	Collateral domain.Token // wrapped native
	Stable     domain.Token // minted by the engine
	NFT        common.Address
}

// ActionCatalog builds the ActionRequests of the position manager, the token
// dashboard and the NFT minter. Approvals are separate requests; nothing here
// chains an approve in front of a spend.
type ActionCatalog struct {
	gateway   ports.ContractGateway
	contracts ContractSet
}

// NewActionCatalog creates a new ActionCatalog.
func NewActionCatalog(gateway ports.ContractGateway, set ContractSet) *ActionCatalog {
	return &ActionCatalog{gateway: gateway, contracts: set}
}

// Wrap deposits native currency into the collateral token.
func (c *ActionCatalog) Wrap(amount string) ActionRequest {
	return ActionRequest{
		Kind:      domain.ActionWrap,
		Contract:  c.contracts.Collateral.Address,
		ABI:       contracts.WETH,
		Method:    "deposit",
		Amounts:   []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: domain.NativeDecimals}},
		ValueFrom: AmountPrimary,
	}
}

// ApproveCollateral lets the engine pull collateral.
func (c *ActionCatalog) ApproveCollateral(amount string) ActionRequest {
	return c.Approve(c.contracts.Collateral, c.contracts.Engine, amount)
}

// ApproveStable lets the engine burn stablecoin on repay.
func (c *ActionCatalog) ApproveStable(amount string) ActionRequest {
	return c.Approve(c.contracts.Stable, c.contracts.Engine, amount)
}

func (c *ActionCatalog) Deposit(amount string) ActionRequest {
	collateral := c.contracts.Collateral.Address
	return ActionRequest{
		Kind:     domain.ActionDeposit,
		Contract: c.contracts.Engine,
		ABI:      contracts.Engine,
		Method:   "depositCollateral",
		Amounts:  []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: c.contracts.Collateral.Decimals}},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{collateral, a[AmountPrimary]}
		},
	}
}

func (c *ActionCatalog) DepositAndMint(collateralAmount, mintAmount string) ActionRequest {
	collateral := c.contracts.Collateral.Address
	return ActionRequest{
		Kind:     domain.ActionDepositAndMint,
		Contract: c.contracts.Engine,
		ABI:      contracts.Engine,
		Method:   "depositCollateralAndMintTsc",
		Amounts: []AmountInput{
			{Name: AmountPrimary, Raw: collateralAmount, Decimals: c.contracts.Collateral.Decimals},
			{Name: AmountMint, Raw: mintAmount, Decimals: c.contracts.Stable.Decimals},
		},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{collateral, a[AmountPrimary], a[AmountMint]}
		},
	}
}

func (c *ActionCatalog) Mint(amount string) ActionRequest {
	return c.engineSingle(domain.ActionMint, "mintTsc", amount)
}

func (c *ActionCatalog) Repay(amount string) ActionRequest {
	return c.engineSingle(domain.ActionRepay, "repayTsc", amount)
}

func (c *ActionCatalog) Redeem(amount string) ActionRequest {
	collateral := c.contracts.Collateral.Address
	return ActionRequest{
		Kind:     domain.ActionRedeem,
		Contract: c.contracts.Engine,
		ABI:      contracts.Engine,
		Method:   "redeemCollateral",
		Amounts:  []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: c.contracts.Collateral.Decimals}},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{collateral, a[AmountPrimary]}
		},
	}
}

// Transfer sends amount of token to recipient.
func (c *ActionCatalog) Transfer(token domain.Token, to common.Address, amount string) ActionRequest {
	return ActionRequest{
		Kind:         domain.ActionTransfer,
		Contract:     token.Address,
		ABI:          contracts.ERC20,
		Method:       "transfer",
		Counterparty: &to,
		Amounts:      []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: token.Decimals}},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{to, a[AmountPrimary]}
		},
	}
}

// TransferUnits sends an exact base-unit amount, as invoices require.
func (c *ActionCatalog) TransferUnits(token domain.Token, to common.Address, amount *big.Int) ActionRequest {
	return c.Transfer(token, to, units.FromBaseUnits(amount, token.Decimals))
}

// Approve grants spender an allowance of amount.
func (c *ActionCatalog) Approve(token domain.Token, spender common.Address, amount string) ActionRequest {
	return ActionRequest{
		Kind:         domain.ActionApprove,
		Contract:     token.Address,
		ABI:          contracts.ERC20,
		Method:       "approve",
		Counterparty: &spender,
		Amounts:      []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: token.Decimals}},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{spender, a[AmountPrimary]}
		},
	}
}

// MintNFT reads the current mint price and builds a payable mint to the
// sender with inline metadata. An unreadable or zero price is rejected.
func (c *ActionCatalog) MintNFT(ctx context.Context, name, description, image string) (ActionRequest, error) {
	tokenURI, err := nftmeta.BuildTokenURI(name, description, image)
	if err != nil {
		return ActionRequest{}, apperror.Validation(err.Error())
	}

	price, err := c.MintPrice(ctx)
	if err != nil {
		return ActionRequest{}, err
	}

	return ActionRequest{
		Kind:     domain.ActionMintNFT,
		Contract: c.contracts.NFT,
		ABI:      contracts.NFT,
		Method:   "mint",
		Value:    price,
		Args: func(owner common.Address, _ map[string]*big.Int) []any {
			return []any{owner, tokenURI}
		},
	}, nil
}

// MintPrice returns the NFT mint price in wei.
func (c *ActionCatalog) MintPrice(ctx context.Context) (*big.Int, error) {
	out, err := c.gateway.Read(ctx, ports.ContractCall{Contract: c.contracts.NFT, ABI: contracts.NFT, Method: "mintPrice"})
	if err != nil {
		return nil, apperror.ErrMintPriceUnavailable()
	}
	price, err := firstUint(out, "mintPrice")
	if err != nil || price.Sign() <= 0 {
		return nil, apperror.ErrMintPriceUnavailable()
	}
	return price, nil
}

func (c *ActionCatalog) engineSingle(kind domain.ActionKind, method, amount string) ActionRequest {
	return ActionRequest{
		Kind:     kind,
		Contract: c.contracts.Engine,
		ABI:      contracts.Engine,
		Method:   method,
		Amounts:  []AmountInput{{Name: AmountPrimary, Raw: amount, Decimals: c.contracts.Stable.Decimals}},
		Args: func(_ common.Address, a map[string]*big.Int) []any {
			return []any{a[AmountPrimary]}
		},
	}
}
