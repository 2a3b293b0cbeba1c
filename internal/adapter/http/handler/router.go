package handler

import (
	"web3-orchestrator/internal/adapter/http/middleware"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	InvoiceSvc     ports.InvoiceService
	AccountSvc     ports.AccountService
	TokenSvc       ports.TokenService
	AuditSvc       ports.AuditService  // nil = audit logging disabled
	RateLimitStore middleware.Limiter  // nil = rate limiting disabled
	Gatherer       prometheus.Gatherer // nil = /metrics disabled
	HealthCheckers []ports.HealthChecker
	Links          InvoiceLinks
	Token          domain.Token
	Mode           string // gin mode; defaults to release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Gatherer != nil {
		r.GET("/metrics", Metrics(deps.Gatherer))
	}

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// rl returns the limiter for group, or a no-op without a store.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	invoiceHandler := NewInvoiceHandler(deps.InvoiceSvc, deps.Links, deps.Token)
	public := v1.Group("/public/invoices")
	{
		public.GET("/:id", rl("public_invoice"), invoiceHandler.GetPublic)
		public.POST("/:id/verify", rl("public_verify"), invoiceHandler.Verify)
	}

	// --- JWT-authenticated routes (payee) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	invoices := v1.Group("/invoices", jwtAuth)
	{
		invoices.POST("", rl("invoice_create"), invoiceHandler.Create)
		invoices.GET("", rl("invoices"), invoiceHandler.List)
		invoices.GET("/stats", rl("invoices"), invoiceHandler.Stats)
	}

	if deps.AccountSvc != nil {
		accountHandler := NewAccountHandler(deps.AccountSvc)
		accounts := v1.Group("/accounts/me", jwtAuth)
		{
			accounts.GET("", rl("account"), accountHandler.GetProfile)
			accounts.PUT("/webhook", rl("account"), accountHandler.UpdateWebhookURL)
			accounts.POST("/rotate-webhook-secret", rl("account"), accountHandler.RotateWebhookSecret)
		}
	}

	return r
}
