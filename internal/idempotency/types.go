package idempotency

import "time"

// Status values for collection records.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record marks one payment collection per order in DynamoDB. The conditional
// create on order_id is what stops a second process from collecting the same
// order twice; the in-process flag in the collection flow only covers one
// instance.
type Record struct {
	OrderID   string    `dynamodbav:"order_id"` // PK
	Status    string    `dynamodbav:"status"`
	PaymentID string    `dynamodbav:"payment_id,omitempty"`
	Amount    float64   `dynamodbav:"amount,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note      string    `dynamodbav:"note,omitempty"`
}
