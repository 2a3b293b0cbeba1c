package handler

import (
	"time"

	"web3-orchestrator/internal/adapter/http/dto"
	"web3-orchestrator/internal/adapter/http/middleware"
	"web3-orchestrator/internal/core/ports"
	"web3-orchestrator/pkg/apperror"
	"web3-orchestrator/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles payee self-service endpoints.
type AccountHandler struct {
	accountSvc ports.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountSvc ports.AccountService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc}
}

// GetProfile returns the authenticated payee's profile.
func (h *AccountHandler) GetProfile(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	account, err := h.accountSvc.Get(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.AccountResponse{
		ID:          account.ID.String(),
		Username:    account.Username,
		DisplayName: account.DisplayName,
		WebhookURL:  account.WebhookURL,
		Status:      string(account.Status),
		CreatedAt:   account.CreatedAt.Format(time.RFC3339),
	})
}

// UpdateWebhookURL sets or clears the webhook URL.
func (h *AccountHandler) UpdateWebhookURL(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := h.accountSvc.UpdateWebhookURL(c.Request.Context(), accountID, req.WebhookURL); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"message": "webhook URL updated"})
}

// RotateWebhookSecret issues a new webhook signing secret.
func (h *AccountHandler) RotateWebhookSecret(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	secret, err := h.accountSvc.RotateWebhookSecret(c.Request.Context(), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RotateSecretResponse{WebhookSecret: secret})
}
