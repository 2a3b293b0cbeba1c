package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"web3-orchestrator/config"
	"web3-orchestrator/internal/adapter/chain"
	"web3-orchestrator/internal/adapter/invoiceclient"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/service"
	"web3-orchestrator/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const nativeSymbol = "ETH"

// env is everything a command needs, built once per invocation.
type env struct {
	cfg *config.Config
	log zerolog.Logger

	session    *chain.KeySession
	snapshots  *service.SnapshotServiceImpl
	dispatcher *service.Dispatcher
	catalog    *service.ActionCatalog
	gallery    *service.GalleryService
	payer      *service.InvoicePayer
	store      *invoiceclient.Client

	set      service.ContractSet
	payToken domain.Token
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Log.Level, true)

	key, err := chain.KeyFromHex(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet.private_key: %w", err)
	}
	endpoints, err := parseEndpoints(cfg.Chain.ChainID, cfg.Chain.RPCURL, cfg.Wallet.Endpoints)
	if err != nil {
		return nil, err
	}

	session := chain.NewKeySession(key, cfg.Chain.ChainID, endpoints, chain.DialEthclient)
	if err := session.Connect(); err != nil {
		return nil, err
	}
	gateway := chain.NewGateway(session, cfg.Chain.ReceiptPollInterval, log)

	set := service.ContractSet{
		Engine:     addressOrZero(cfg.Contracts.Engine),
		Collateral: domain.Token{Address: addressOrZero(cfg.Contracts.Collateral), Symbol: "WETH", Decimals: 18},
		Stable:     domain.Token{Address: addressOrZero(cfg.Contracts.Stable), Symbol: "TSC", Decimals: 18},
		NFT:        addressOrZero(cfg.Contracts.NFT),
	}
	payToken := domain.Token{
		Address:  addressOrZero(cfg.Token.Address),
		Symbol:   cfg.Token.Symbol,
		Decimals: cfg.Token.Decimals,
	}

	// Token metadata comes from the chain when readable; config is the fallback.
	probe := service.NewSnapshotService(gateway, session, service.SnapshotLayout{}, nil, log)
	if set.Collateral.Address != (common.Address{}) {
		set.Collateral = probe.TokenInfo(c.Context, set.Collateral.Address, set.Collateral)
	}
	if set.Stable.Address != (common.Address{}) {
		set.Stable = probe.TokenInfo(c.Context, set.Stable.Address, set.Stable)
	}
	m := metricsFrom(c)
	snapshots := service.NewSnapshotService(gateway, session, snapshotLayout(set, payToken), m, log)

	tracker := service.NewTracker(gateway, cfg.Chain.ReceiptTimeout, m, log)
	tracker.OnConfirmed(func(ctx context.Context, action domain.PendingAction) {
		if _, err := snapshots.Refresh(ctx); err != nil {
			log.Warn().Err(err).Str("kind", string(action.Kind)).Msg("refresh after confirmation failed")
		}
	})

	dispatcher := service.NewDispatcher(gateway, session, tracker, m, log)
	catalog := service.NewActionCatalog(gateway, set)

	store := invoiceclient.New(
		cfg.API.BaseURL,
		invoiceclient.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		invoiceclient.WithToken(c.String(apiTokenFlag.Name)),
	)

	return &env{
		cfg:        cfg,
		log:        log,
		session:    session,
		snapshots:  snapshots,
		dispatcher: dispatcher,
		catalog:    catalog,
		gallery:    service.NewGalleryService(gateway, set.NFT),
		payer:      service.NewInvoicePayer(store, session, dispatcher, catalog, log),
		store:      store,
		set:        set,
		payToken:   payToken,
	}, nil
}

// snapshotLayout reads every configured token plus the engine allowances.
func snapshotLayout(set service.ContractSet, payToken domain.Token) service.SnapshotLayout {
	layout := service.SnapshotLayout{NativeSymbol: nativeSymbol}
	for _, tok := range []domain.Token{set.Collateral, set.Stable, payToken} {
		if tok.Address != (common.Address{}) {
			layout.Tokens = append(layout.Tokens, tok)
		}
	}
	if set.Engine == (common.Address{}) {
		return layout
	}
	engine := set.Engine
	layout.Engine = &engine
	for _, tok := range []domain.Token{set.Collateral, set.Stable} {
		if tok.Address != (common.Address{}) {
			layout.Allowances = append(layout.Allowances, service.AllowanceRead{Token: tok, Spender: engine, Label: "engine"})
		}
	}
	return layout
}

// parseEndpoints merges the primary rpc url with the per-chain switch
// targets. Keys are decimal chain ids.
func parseEndpoints(chainID int64, rpcURL string, extra map[string]string) (map[int64]string, error) {
	out := make(map[int64]string, len(extra)+1)
	for k, v := range extra {
		id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("wallet.endpoints: bad chain id %q", k)
		}
		out[id] = v
	}
	if rpcURL != "" {
		out[chainID] = rpcURL
	}
	if _, ok := out[chainID]; !ok {
		return nil, fmt.Errorf("no rpc endpoint for chain %d (set chain.rpc_url)", chainID)
	}
	return out, nil
}

func addressOrZero(s string) common.Address {
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
