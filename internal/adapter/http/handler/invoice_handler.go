package handler

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"web3-orchestrator/internal/adapter/http/dto"
	"web3-orchestrator/internal/adapter/http/middleware"
	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/response"
	"web3-orchestrator/pkg/units"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey makes invoice creation safe to retry.
const HeaderIdempotencyKey = "Idempotency-Key"

// InvoiceLinks builds the URLs attached to invoice responses.
type InvoiceLinks struct {
	PublicBaseURL string // pay link host, e.g. https://pay.example.com
	ExplorerTxURL string // prefix, tx hash appended
}

// PayURL returns the public pay link for an invoice.
func (l InvoiceLinks) PayURL(id uuid.UUID) string {
	return strings.TrimRight(l.PublicBaseURL, "/") + "/t-link-pay/pay/" + id.String()
}

// TxURL returns the explorer link for a transaction, or "".
func (l InvoiceLinks) TxURL(hash string) string {
	if l.ExplorerTxURL == "" || hash == "" {
		return ""
	}
	return l.ExplorerTxURL + hash
}

// InvoiceHandler serves the payee invoice API and the public pay-link API.
type InvoiceHandler struct {
	invoiceSvc ports.InvoiceService
	links      InvoiceLinks
	token      domain.Token
}

// NewInvoiceHandler creates a new InvoiceHandler for invoices in token.
func NewInvoiceHandler(invoiceSvc ports.InvoiceService, links InvoiceLinks, token domain.Token) *InvoiceHandler {
	return &InvoiceHandler{invoiceSvc: invoiceSvc, links: links, token: token}
}

// Create handles POST /api/v1/invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	idemKey := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if idemKey != "" && !dto.IsSafeID(idemKey) {
		response.Error(c, apperror.Validation("Invalid Idempotency-Key header"))
		return
	}

	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	inv, err := h.invoiceSvc.Create(c.Request.Context(), accountID, ports.CreateInvoiceRequest{
		ReceiverAddress: req.ReceiverAddress,
		ReceiverName:    req.ReceiverName,
		Amount:          req.Amount,
		Description:     req.Description,
		IdempotencyKey:  idemKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, inv.ID.String())
	response.Created(c, h.toInvoiceResponse(inv))
}

// List handles GET /api/v1/invoices.
func (h *InvoiceHandler) List(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.InvoiceListParams{
		OwnerID:  accountID,
		Page:     page,
		PageSize: pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.InvoiceStatus(strings.ToUpper(s))
		if status != domain.InvoiceStatusPaid && status != domain.InvoiceStatusUnpaid {
			response.Error(c, apperror.Validation("status must be PAID or UNPAID"))
			return
		}
		params.Status = &status
	}

	invoices, total, err := h.invoiceSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, h.toInvoiceResponse(&invoices[i]))
	}
	response.OK(c, response.NewPage(items, total, page, pageSize))
}

// Stats handles GET /api/v1/invoices/stats.
func (h *InvoiceHandler) Stats(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	stats, err := h.invoiceSvc.Stats(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.InvoiceStatsResponse{
		Total:           stats.Total,
		Paid:            stats.Paid,
		Unpaid:          stats.Unpaid,
		PaidVolume:      "0",
		PaidVolumeUnits: stats.PaidVolumeUnits,
		TokenSymbol:     h.token.Symbol,
	}
	if v, ok := new(big.Int).SetString(stats.PaidVolumeUnits, 10); ok {
		resp.PaidVolume = units.FromBaseUnits(v, h.token.Decimals)
	}
	response.OK(c, resp)
}

// GetPublic handles GET /api/v1/public/invoices/:id.
func (h *InvoiceHandler) GetPublic(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("invoice"))
		return
	}

	inv, err := h.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.toInvoiceResponse(inv))
}

// Verify handles POST /api/v1/public/invoices/:id/verify. A rejected
// transfer is a 200 with ok=false; only transport-level trouble is an error.
func (h *InvoiceHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("invoice"))
		return
	}

	var req dto.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	verdict, err := h.invoiceSvc.VerifyPayment(c.Request.Context(), id, req.TxHash)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.VerifyPaymentResponse{OK: verdict.OK, Reason: verdict.Reason}
	if verdict.OK {
		resp.ExplorerTxURL = h.links.TxURL(strings.ToLower(strings.TrimSpace(req.TxHash)))
	}
	response.OK(c, resp)
}

func (h *InvoiceHandler) toInvoiceResponse(inv *domain.Invoice) dto.InvoiceResponse {
	resp := dto.InvoiceResponse{
		ID:              inv.ID.String(),
		Status:          string(inv.Status),
		ReceiverAddress: inv.ReceiverAddress,
		ReceiverName:    inv.ReceiverName,
		ChainID:         inv.ChainID,
		TokenAddress:    inv.TokenAddress,
		TokenSymbol:     inv.TokenSymbol,
		TokenDecimals:   inv.TokenDecimals,
		Amount:          inv.Amount,
		AmountUnits:     inv.AmountUnits,
		Description:     inv.Description,
		TxHash:          inv.TxHash,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		PayURL:          h.links.PayURL(inv.ID),
	}
	if inv.PaidAt != nil {
		s := inv.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &s
	}
	if inv.TxHash != nil {
		resp.ExplorerTxURL = h.links.TxURL(*inv.TxHash)
	}
	return resp
}
