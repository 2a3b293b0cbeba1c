package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"web3-orchestrator/internal/core/domain"
	"web3-orchestrator/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful write operations after the handler ran.
// Handlers may set CtxAuditResource to name the affected resource id.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var accountID *uuid.UUID
		if id, ok := AccountID(c); ok {
			accountID = &id
		}
		resourceID := c.GetString(CtxAuditResource)
		if resourceID == "" {
			resourceID = c.Param("id")
		}

		details, _ := json.Marshal(map[string]any{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			AccountID:    accountID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

// CtxAuditResource carries the id of the resource a write created or touched.
const CtxAuditResource = "audit_resource_id"

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/auth/register" && method == http.MethodPost:
		return domain.AuditActionRegister, "account"
	case route == "/api/v1/auth/login" && method == http.MethodPost:
		return domain.AuditActionLogin, "session"
	case route == "/api/v1/invoices" && method == http.MethodPost:
		return domain.AuditActionCreateInvoice, "invoice"
	case route == "/api/v1/public/invoices/:id/verify" && method == http.MethodPost:
		return domain.AuditActionVerifyPayment, "invoice"
	case route == "/api/v1/accounts/me/webhook" && method == http.MethodPut:
		return domain.AuditActionUpdateWebhook, "account"
	case route == "/api/v1/accounts/me/rotate-webhook-secret" && method == http.MethodPost:
		return domain.AuditActionRotateWebhookSecret, "account"
	}
	return "", ""
}
