package order

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

// Invoice statuses.
const (
	InvoiceDraft   = "draft"
	InvoiceSent    = "sent"
	InvoicePaid    = "paid"
	InvoiceOverdue = "overdue"
	InvoiceVoid    = "void"
)

// Invoice collects one user's consumptions for one calendar month,
// unique per (user, period).
type Invoice struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Name      string    `json:"invoice_name" db:"invoice_name"`
	Status    string    `json:"status" db:"status"`
	Period    time.Time `json:"period" db:"period"` // first day of the month
	SentAt    null.Time `json:"sent_at" db:"sent_at"`
	DueAt     null.Time `json:"due_at" db:"due_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// InvoiceName formats the unique invoice name for a period and its sequence
// number within that period.
func InvoiceName(period time.Time, seq int) string {
	return fmt.Sprintf("INV-%s_%d", period.Format("2006-01"), seq)
}

type Consumption struct {
	ID             int       `json:"id" db:"id"`
	UserID         int       `json:"user_id" db:"user_id"`
	BeverageID     int       `json:"beverage_id" db:"beverage_id"`
	RolePriceID    int       `json:"beverage_price_id" db:"beverage_price_id"`
	InvoiceID      int       `json:"invoice_id" db:"invoice_id"`
	Quantity       int       `json:"quantity" db:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents" db:"unit_price_cents"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
}

func (c Consumption) CostCents() int {
	return c.Quantity * c.UnitPriceCents
}

type NewConsumption struct {
	UserID     int `json:"user_id" validate:"required"`
	BeverageID int `json:"beverage_id" validate:"required"`
	Quantity   int `json:"quantity" validate:"omitempty,gte=1"`
}

func (nc *NewConsumption) Validate() error {
	if nc.Quantity == 0 {
		nc.Quantity = 1
	}
	return core.Validate.Struct(nc)
}

// BeverageSummary aggregates one user's consumptions of one beverage.
type BeverageSummary struct {
	BeverageID   int       `json:"beverage_id" db:"beverage_id"`
	BeverageName string    `json:"beverage_name" db:"beverage_name"`
	Count        int       `json:"count" db:"count"`
	Quantity     int       `json:"total_quantity" db:"total_quantity"`
	CostCents    int       `json:"total_cost_cents" db:"total_cost_cents"`
	First        null.Time `json:"first_consumption" db:"first_consumption"`
	Last         null.Time `json:"last_consumption" db:"last_consumption"`
}

// ReportRow is one (user, beverage) line of the monthly report.
type ReportRow struct {
	FirstName     string      `json:"first_name" db:"first_name"`
	LastName      string      `json:"last_name" db:"last_name"`
	Email         null.String `json:"email" db:"email"`
	RoleName      string      `json:"role" db:"role_name"`
	BeverageName  string      `json:"beverage_name" db:"beverage_name"`
	Category      string      `json:"category" db:"category"`
	Quantity      int         `json:"total_quantity" db:"total_quantity"`
	Count         int         `json:"consumption_count" db:"consumption_count"`
	CostCents     int         `json:"total_cost_cents" db:"total_cost_cents"`
	AvgPriceCents float64     `json:"avg_price_cents" db:"avg_price_cents"`
}

// UserSummary is one user's monthly total, ordered by cost descending.
type UserSummary struct {
	UserID    int         `json:"user_id" db:"user_id"`
	FirstName string      `json:"first_name" db:"first_name"`
	LastName  string      `json:"last_name" db:"last_name"`
	Email     null.String `json:"email" db:"email"`
	RoleName  string      `json:"role" db:"role_name"`
	Quantity  int         `json:"total_quantity" db:"total_quantity"`
	Count     int         `json:"total_consumptions" db:"total_consumptions"`
	CostCents int         `json:"total_cost_cents" db:"total_cost_cents"`
}

// ReportSummary is the global footer of the monthly report.
type ReportSummary struct {
	Users        int `json:"total_users" db:"total_users"`
	Consumptions int `json:"total_consumptions" db:"total_consumptions"`
	Quantity     int `json:"total_quantity" db:"total_quantity"`
	RevenueCents int `json:"total_revenue_cents" db:"total_revenue_cents"`
}

// Month references a report period available for navigation.
type Month struct {
	Year  int `json:"year" db:"year"`
	Month int `json:"month" db:"month"`
}

type MonthlyReport struct {
	Period        time.Time     `json:"period"`
	Rows          []ReportRow   `json:"consumptions"`
	UserSummaries []UserSummary `json:"user_summaries"`
	Summary       ReportSummary `json:"summary"`
	Months        []Month       `json:"available_months"`
}
