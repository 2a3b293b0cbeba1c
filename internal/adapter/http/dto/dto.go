package dto

// RegisterRequest is the request body for payee registration.
type RegisterRequest struct {
	Username    string  `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password    string  `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	DisplayName string  `json:"display_name" binding:"max=100"`
	WebhookURL  *string `json:"webhook_url,omitempty" binding:"omitempty,max=2048,safe_url"`
}

// LoginRequest is the request body for payee login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// RegisterResponse is the response body for successful registration.
// The webhook secret is only ever shown here and on rotation.
type RegisterResponse struct {
	AccountID     string `json:"account_id"`
	WebhookSecret string `json:"webhook_secret"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateInvoiceRequest is the request body for a new pay link. Amount is a
// human decimal in the configured payment token.
type CreateInvoiceRequest struct {
	ReceiverAddress string  `json:"receiver_address" binding:"required,max=64"`
	ReceiverName    *string `json:"receiver_name,omitempty" binding:"omitempty,max=100"`
	Amount          string  `json:"amount" binding:"required,max=80"`
	Description     *string `json:"description,omitempty" binding:"omitempty,max=500"`
}

// VerifyPaymentRequest is the request body for payment verification.
type VerifyPaymentRequest struct {
	TxHash string `json:"tx_hash" binding:"required,tx_hash"`
}

// VerifyPaymentResponse mirrors the verifier's verdict.
type VerifyPaymentResponse struct {
	OK            bool   `json:"ok"`
	Reason        string `json:"reason,omitempty"`
	ExplorerTxURL string `json:"explorer_tx_url,omitempty"`
}

// InvoiceResponse is the public view of an invoice.
type InvoiceResponse struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	ReceiverAddress string  `json:"receiver_address"`
	ReceiverName    *string `json:"receiver_name,omitempty"`
	ChainID         int64   `json:"chain_id"`
	TokenAddress    string  `json:"token_address"`
	TokenSymbol     string  `json:"token_symbol"`
	TokenDecimals   int     `json:"token_decimals"`
	Amount          string  `json:"amount"`
	AmountUnits     string  `json:"amount_units"`
	Description     *string `json:"description,omitempty"`
	TxHash          *string `json:"tx_hash,omitempty"`
	CreatedAt       string  `json:"created_at"`
	PaidAt          *string `json:"paid_at,omitempty"`
	PayURL          string  `json:"pay_url"`
	ExplorerTxURL   string  `json:"explorer_tx_url,omitempty"`
}

// InvoiceStatsResponse is the response for invoice statistics.
type InvoiceStatsResponse struct {
	Total           int64  `json:"total"`
	Paid            int64  `json:"paid"`
	Unpaid          int64  `json:"unpaid"`
	PaidVolume      string `json:"paid_volume"`
	PaidVolumeUnits string `json:"paid_volume_units"`
	TokenSymbol     string `json:"token_symbol"`
}

// UpdateWebhookRequest sets or clears (null) the webhook URL.
type UpdateWebhookRequest struct {
	WebhookURL *string `json:"webhook_url" binding:"omitempty,max=2048,safe_url"`
}

// AccountResponse is the authenticated payee's profile.
type AccountResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	WebhookURL  *string `json:"webhook_url,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// RotateSecretResponse carries the new plaintext webhook secret.
type RotateSecretResponse struct {
	WebhookSecret string `json:"webhook_secret"`
}
