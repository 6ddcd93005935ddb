package catalog

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

// Beverage categories.
const (
	CategoryDrink = "drink"
	CategoryFood  = "food"
	CategorySnack = "snack"
)

type Beverage struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Category  string    `json:"category" db:"category"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// RolePrice is the regular price of a beverage for one role,
// unique per (role, beverage).
type RolePrice struct {
	ID         int       `json:"id" db:"id"`
	RoleID     int       `json:"role_id" db:"role_id"`
	BeverageID int       `json:"beverage_id" db:"beverage_id"`
	PriceCents int       `json:"price_cents" db:"price_cents"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// DailyPrice overrides the role price of a beverage for a single day
// (promotions, leftovers).
type DailyPrice struct {
	ID         int       `json:"id" db:"id"`
	BeverageID int       `json:"beverage_id" db:"beverage_id"`
	Date       time.Time `json:"date" db:"date"` // calendar day, midnight UTC
	PriceCents int       `json:"price_cents" db:"price_cents"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
}

// DisplayItem is a line on the customer-facing price list; it is display
// only and never booked.
type DisplayItem struct {
	ID           int         `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Description  null.String `json:"description" db:"description"`
	PriceCents   int         `json:"price_cents" db:"price_cents"`
	Category     string      `json:"category" db:"category"`
	DisplayOrder int         `json:"display_order" db:"display_order"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

type NewBeverage struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category" validate:"omitempty,oneof=drink food"`
}

func (nb *NewBeverage) Validate() error {
	nb.Name = core.CleanString(nb.Name)
	if nb.Category == "" {
		nb.Category = CategoryDrink
	}
	return core.Validate.Struct(nb)
}

// PriceEntry is one (beverage, price) pair of a bulk price update.
type PriceEntry struct {
	BeverageID int `json:"beverage_id" validate:"required"`
	PriceCents int `json:"price_cents" validate:"gte=0"`
}

// RolePrices is a bulk replace-all update of one role's price list.
type RolePrices struct {
	RoleID int          `json:"role_id" validate:"required"`
	Prices []PriceEntry `json:"prices" validate:"required,dive"`
}

func (rp *RolePrices) Validate() error { return core.Validate.Struct(rp) }

// UnifiedPrices sets the same beverage prices for every role at once.
type UnifiedPrices struct {
	Prices []PriceEntry `json:"prices" validate:"required,dive"`
}

func (up *UnifiedPrices) Validate() error { return core.Validate.Struct(up) }

type NewDailyPrice struct {
	BeverageID int       `json:"beverage_id" validate:"required"`
	Date       time.Time `json:"date"`
	PriceCents int       `json:"price_cents" validate:"gte=0"`
}

func (nd *NewDailyPrice) Validate() error { return core.Validate.Struct(nd) }

type NewDisplayItem struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description"`
	PriceCents   int    `json:"price_cents" validate:"gte=0"`
	Category     string `json:"category" validate:"omitempty,oneof=drink food snack"`
	DisplayOrder int    `json:"display_order"`
}

func (ni *NewDisplayItem) Validate() error {
	ni.Name = core.CleanString(ni.Name)
	ni.Description = core.CleanString(ni.Description)
	if ni.Category == "" {
		ni.Category = CategoryFood
	}
	return core.Validate.Struct(ni)
}

type UpdateDisplayItem struct {
	Name         string `json:"name"`
	Description  *string `json:"description"`
	PriceCents   *int   `json:"price_cents" validate:"omitempty,gte=0"`
	Category     string `json:"category" validate:"omitempty,oneof=drink food snack"`
	DisplayOrder *int   `json:"display_order"`
	IsActive     *bool  `json:"is_active"`
}

func (ui *UpdateDisplayItem) Validate() error {
	ui.Name = core.CleanString(ui.Name)
	return core.Validate.Struct(ui)
}
