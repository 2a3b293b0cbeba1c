package domain

// WebhookEvent is the type of notification sent to a payee's webhook URL.
type WebhookEvent string

const (
	EventInvoicePaid WebhookEvent = "INVOICE_PAID"
)

// WebhookStatus represents the delivery outcome of a webhook.
type WebhookStatus string

const (
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
	WebhookStatusSkipped   WebhookStatus = "SKIPPED"
)
