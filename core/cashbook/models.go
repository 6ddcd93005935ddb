package cashbook

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

// Entry is one line of a company's cash book. KassenstandCents is the running
// cash balance after this entry; entries chain in (entry date, id) order.
type Entry struct {
	ID               int         `json:"id" db:"id"`
	Company          string      `json:"company" db:"company"`
	BelegNummer      int         `json:"beleg_nummer" db:"beleg_nummer"`
	EntryDate        time.Time   `json:"entry_date" db:"entry_date"` // calendar day
	Bemerkung        null.String `json:"bemerkung" db:"bemerkung"`
	Posten           string      `json:"posten" db:"posten"`
	EinnahmenCents   int         `json:"einnahmen_bar_cents" db:"einnahmen_bar_cents"`
	AusgabenCents    int         `json:"ausgaben_bar_cents" db:"ausgaben_bar_cents"`
	KassenstandCents int         `json:"kassenstand_bar_cents" db:"kassenstand_bar_cents"`
	CreatedBy        null.String `json:"created_by" db:"created_by"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// DeltaCents is the signed cash movement of this entry.
func (e Entry) DeltaCents() int {
	return e.EinnahmenCents - e.AusgabenCents
}

type NewEntry struct {
	Company        string    `json:"company" validate:"required"`
	EntryDate      time.Time `json:"entry_date"`
	Bemerkung      string    `json:"bemerkung"`
	Posten         string    `json:"posten" validate:"required"`
	EinnahmenCents int       `json:"einnahmen_bar_cents" validate:"gte=0"`
	AusgabenCents  int       `json:"ausgaben_bar_cents" validate:"gte=0"`
	CreatedBy      string    `json:"created_by"`
}

func (ne *NewEntry) Validate() error {
	ne.Company = core.CleanString(ne.Company)
	ne.Posten = core.CleanString(ne.Posten)
	return core.Validate.Struct(ne)
}

type UpdateEntry struct {
	EntryDate      *time.Time `json:"entry_date"`
	Bemerkung      *string    `json:"bemerkung"`
	Posten         string     `json:"posten"`
	EinnahmenCents *int       `json:"einnahmen_bar_cents" validate:"omitempty,gte=0"`
	AusgabenCents  *int       `json:"ausgaben_bar_cents" validate:"omitempty,gte=0"`
}

func (ue *UpdateEntry) Validate() error {
	ue.Posten = core.CleanString(ue.Posten)
	return core.Validate.Struct(ue)
}
