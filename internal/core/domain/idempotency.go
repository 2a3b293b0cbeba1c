package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog stores the response of an invoice creation under the
// client-supplied Idempotency-Key, scoped to the owner.
type IdempotencyLog struct {
	Key          string    `json:"key"`
	InvoiceID    uuid.UUID `json:"invoice_id"`
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client key to the invoice owner.
func BuildIdempotencyKey(ownerID uuid.UUID, key string) string {
	return ownerID.String() + ":" + key
}
