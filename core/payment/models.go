package payment

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

// Payment methods.
const (
	MethodPayPal = "paypal"
	MethodCash   = "cash"
	MethodCard   = "mypos_card"
)

// Payment statuses.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Cash request statuses.
const (
	CashPending   = "pending"
	CashCollected = "collected"
	CashCancelled = "cancelled"
)

// myPOS transaction statuses.
const (
	MyPOSPending   = "pending"
	MyPOSCompleted = "completed"
	MyPOSCancelled = "cancelled"
	MyPOSFailed    = "failed"
)

// Payment settles part of a user's tab. While pending it reserves the covered
// consumptions through PaymentConsumption links.
type Payment struct {
	ID          int         `json:"id" db:"id"`
	UserID      int         `json:"user_id" db:"user_id"`
	AmountCents int         `json:"amount_cents" db:"amount_cents"`
	Method      string      `json:"payment_method" db:"payment_method"`
	Status      string      `json:"payment_status" db:"payment_status"`
	Reference   null.String `json:"payment_reference" db:"payment_reference"`
	Notes       null.String `json:"notes" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
	PaidAt      null.Time   `json:"paid_at" db:"paid_at"`
}

// PaymentConsumption reserves (part of) a consumption's cost against a payment.
type PaymentConsumption struct {
	ID            int       `json:"id" db:"id"`
	PaymentID     int       `json:"payment_id" db:"payment_id"`
	ConsumptionID int       `json:"consumption_id" db:"consumption_id"`
	AmountCents   int       `json:"amount_cents" db:"amount_cents"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"` // UTC
}

// CashRequest is a user's announcement to pay cash at the counter.
type CashRequest struct {
	ID          int         `json:"id" db:"id"`
	UserID      int         `json:"user_id" db:"user_id"`
	AmountCents int         `json:"amount_cents" db:"amount_cents"`
	Status      string      `json:"status" db:"status"`
	Note        null.String `json:"note" db:"note"`
	ResolvedBy  null.String `json:"resolved_by" db:"resolved_by"`
	ResolvedAt  null.Time   `json:"resolved_at" db:"resolved_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// MyPOSTransaction tracks one card-terminal interaction.
type MyPOSTransaction struct {
	ID            int         `json:"id" db:"id"`
	PaymentID     null.Int    `json:"payment_id" db:"payment_id"`
	UserID        int         `json:"user_id" db:"user_id"`
	AmountCents   int         `json:"amount_cents" db:"amount_cents"`
	TransactionID null.String `json:"transaction_id" db:"transaction_id"`
	Status        string      `json:"status" db:"status"`
	DeviceID      null.String `json:"device_id" db:"device_id"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"` // UTC
	CompletedAt   null.Time   `json:"completed_at" db:"completed_at"`
}

// PayPalTransaction is a confirmed transaction found in PayPal reporting.
type PayPalTransaction struct {
	TransactionID string
	PayerEmail    string
	Status        string
}

type NewPayment struct {
	UserID      int    `json:"user_id" validate:"required"`
	AmountCents int    `json:"amount_cents" validate:"required,gt=0"`
	Method      string `json:"payment_method" validate:"required,oneof=paypal cash mypos_card"`
	Notes       string `json:"notes"`
}

func (np *NewPayment) Validate() error { return core.Validate.Struct(np) }

type NewCashRequest struct {
	UserID      int    `json:"user_id" validate:"required"`
	AmountCents int    `json:"amount_cents" validate:"required,gt=0"`
	Note        string `json:"note"`
}

func (nc *NewCashRequest) Validate() error { return core.Validate.Struct(nc) }

type NewMyPOSTransaction struct {
	UserID      int    `json:"user_id" validate:"required"`
	AmountCents int    `json:"amount_cents" validate:"required,gt=0"`
	DeviceID    string `json:"device_id"`
}

func (nt *NewMyPOSTransaction) Validate() error { return core.Validate.Struct(nt) }
