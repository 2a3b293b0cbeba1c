package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the state of a payee account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account is a payee who issues invoices.
type Account struct {
	ID               uuid.UUID     `json:"id"`
	Username         string        `json:"username"`
	PasswordHash     string        `json:"-"` // Never expose
	DisplayName      string        `json:"display_name"`
	WebhookURL       *string       `json:"webhook_url,omitempty"`
	WebhookSecretEnc string        `json:"-"` // Encrypted, never expose
	Status           AccountStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsActive returns true if the account is active.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
