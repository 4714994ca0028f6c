package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindCharge Kind = "charge"
	KindRefund Kind = "refund"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailed   Status = "FAILED"
	StatusRefunded Status = "REFUNDED"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrAmountMismatch  = errors.New("amount does not match order total")
	ErrFraudBlocked    = errors.New("payment blocked by fraud screening")
	ErrGatewayTimeout  = errors.New("payment gateway timed out")
	ErrPaymentDeclined = errors.New("payment declined by gateway")
	ErrNotRefundable   = errors.New("payment is not refundable")
	ErrOrderNotPayable = errors.New("order is not payable in its current status")
)

// Payment is one charge or refund attempt. Records are append-only: a refund
// is a new record referencing the charge, never a mutation of it.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	Kind           Kind            `json:"kind"`
	Method         string          `json:"method"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	GatewayMessage string          `json:"gateway_message,omitempty"`
	RiskScore      float64         `json:"risk_score"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	RefundOf       uuid.UUID       `json:"refund_of,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewTransactionID generates a gateway-style transaction reference.
func NewTransactionID() string {
	return fmt.Sprintf("TXN_%d", time.Now().UnixNano())
}
