package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web3-orchestrator/config"
	"web3-orchestrator/internal/adapter/chain"
	httpHandler "web3-orchestrator/internal/adapter/http/handler"
	pgStorage "web3-orchestrator/internal/adapter/storage/postgres"
	redisStorage "web3-orchestrator/internal/adapter/storage/redis"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/internal/metrics"
	"web3-orchestrator/internal/service"
	"web3-orchestrator/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Int64("chain_id", cfg.Chain.ChainID).
		Msg("Starting Web3 Orchestrator API")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if cfg.Database.AutoMigrate {
		if err := pgStorage.Migrate(ctx, pool, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize RPC client
	rpc, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to dial RPC node")
	}
	defer rpc.Close()
	log.Info().Str("chain", cfg.Chain.ChainName).Msg("RPC node dialed")

	token := domain.Token{
		Address:  common.HexToAddress(cfg.Token.Address),
		Symbol:   cfg.Token.Symbol,
		Decimals: cfg.Token.Decimals,
	}

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	invoiceRepo := pgStorage.NewInvoiceRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool, cfg.Database.LockTimeout)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	settlementClaims := redisStorage.NewSettlementClaims(rdb)
	verificationCache := redisStorage.NewVerificationCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	m := metrics.Orchestrator()

	// Initialize business services
	webhookSvc := service.NewWebhookService(
		accountRepo,
		encSvc,
		sigSvc,
		&http.Client{Timeout: 10 * time.Second},
		cfg.Chain.ExplorerTxURL,
		m,
		log,
	)
	verifier := service.NewEVMSettlementVerifier(
		rpc,
		cfg.Chain.ChainID,
		cfg.Chain.Confirmations,
		cfg.Chain.ReceiptPollInterval,
		cfg.Chain.VerifyTimeout,
		log,
	)
	invoiceSvc := service.NewInvoiceService(
		invoiceRepo,
		idempotencyRepo,
		idempotencyCache,
		settlementClaims,
		verificationCache,
		verifier,
		webhookSvc,
		transactor,
		token,
		cfg.Chain.ChainID,
		m,
		log,
	)
	authSvc := service.NewAuthService(accountRepo, hashSvc, encSvc, tokenSvc, log)
	accountSvc := service.NewAccountService(accountRepo, encSvc)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)
	rpcHealth := chain.NewHealthCheck(rpc, cfg.Chain.ChainID)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		InvoiceSvc:     invoiceSvc,
		AccountSvc:     accountSvc,
		TokenSvc:       tokenSvc,
		AuditSvc:       auditSvc,
		RateLimitStore: rateLimitStore,
		Gatherer:       prometheus.DefaultGatherer,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth, rpcHealth},
		Links: httpHandler.InvoiceLinks{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			ExplorerTxURL: cfg.Chain.ExplorerTxURL,
		},
		Token:  token,
		Mode:   cfg.Server.Mode,
		Logger: log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
