package cashbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

var ErrEntryNotFound = errors.New("cash book entry not found")

// methodLabels maps payment methods to the German posting labels.
var methodLabels = map[string]string{
	"paypal":     "PayPal",
	"cash":       "Bar",
	"mypos_card": "Karte",
	"revolut":    "Revolut",
}

type (
	Repository interface {
		CreateEntry(ctx context.Context, entry Entry) (Entry, error)
		GetEntryByID(ctx context.Context, id int) (Entry, error)
		// QueryEntries returns a company's entries in (entry date, id) order,
		// oldest first.
		QueryEntries(ctx context.Context, company string) ([]Entry, error)
		GetEntryByBemerkung(ctx context.Context, company, bemerkung string) (Entry, error)
		// LastEntry returns the newest entry of a company in chain order.
		LastEntry(ctx context.Context, company string) (Entry, error)
		MaxBelegNummer(ctx context.Context, company string) (int, error)
		UpdateEntry(ctx context.Context, entry Entry) (Entry, error)
		DeleteEntryByID(ctx context.Context, id int) error
		// SaveBalances persists recalculated running balances in one transaction.
		SaveBalances(ctx context.Context, entries []Entry) error
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

func (svc *Service) Entries(ctx context.Context, company string) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, company)
}

// CurrentBalance returns the latest cash balance of a company in cents.
func (svc *Service) CurrentBalance(ctx context.Context, company string) (int, error) {
	last, err := svc.repo.LastEntry(ctx, company)
	switch errors.Cause(err) {
	case nil:
		return last.KassenstandCents, nil
	case ErrEntryNotFound:
		return 0, nil
	default:
		return 0, err
	}
}

// NextBelegNummer returns the next sequential receipt number of a company.
func (svc *Service) NextBelegNummer(ctx context.Context, company string) (int, error) {
	max, err := svc.repo.MaxBelegNummer(ctx, company)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// AddEntry appends a cash book entry. Backdated entries are allowed; the
// whole chain is recalculated afterwards so every running balance stays
// consistent.
func (svc *Service) AddEntry(ctx context.Context, ne NewEntry) (Entry, error) {
	beleg, err := svc.NextBelegNummer(ctx, ne.Company)
	if err != nil {
		return Entry{}, err
	}

	entryDate := ne.EntryDate
	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}
	now := time.Now().UTC()
	entry := Entry{
		Company:        ne.Company,
		BelegNummer:    beleg,
		EntryDate:      truncateToDay(entryDate),
		Posten:         ne.Posten,
		EinnahmenCents: ne.EinnahmenCents,
		AusgabenCents:  ne.AusgabenCents,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ne.Bemerkung != "" {
		entry.Bemerkung = null.StringFrom(ne.Bemerkung)
	}
	if ne.CreatedBy != "" {
		entry.CreatedBy = null.StringFrom(ne.CreatedBy)
	}

	entry, err = svc.repo.CreateEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	if err = svc.RecalculateAll(ctx, ne.Company); err != nil {
		return Entry{}, err
	}
	return svc.repo.GetEntryByID(ctx, entry.ID)
}

// UpdateEntry modifies an entry and re-chains the balances from scratch;
// a date change may reorder the chain.
func (svc *Service) UpdateEntry(ctx context.Context, id int, ue UpdateEntry) (Entry, error) {
	entry, err := svc.repo.GetEntryByID(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	if ue.EntryDate != nil {
		entry.EntryDate = truncateToDay(*ue.EntryDate)
	}
	if ue.Bemerkung != nil {
		if *ue.Bemerkung == "" {
			entry.Bemerkung = null.String{}
		} else {
			entry.Bemerkung = null.StringFrom(*ue.Bemerkung)
		}
	}
	if ue.Posten != "" {
		entry.Posten = ue.Posten
	}
	if ue.EinnahmenCents != nil {
		entry.EinnahmenCents = *ue.EinnahmenCents
	}
	if ue.AusgabenCents != nil {
		entry.AusgabenCents = *ue.AusgabenCents
	}
	entry.UpdatedAt = time.Now().UTC()

	if _, err = svc.repo.UpdateEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	if err = svc.RecalculateAll(ctx, entry.Company); err != nil {
		return Entry{}, err
	}
	return svc.repo.GetEntryByID(ctx, id)
}

func (svc *Service) DeleteEntry(ctx context.Context, id int) error {
	entry, err := svc.repo.GetEntryByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteEntryByID(ctx, id); err != nil {
		return err
	}
	return svc.RecalculateAll(ctx, entry.Company)
}

// RecalculateAll rebuilds a company's running balances from zero in
// (entry date, id) order. Fixes corrupted chains and handles backdated edits.
func (svc *Service) RecalculateAll(ctx context.Context, company string) error {
	entries, err := svc.repo.QueryEntries(ctx, company)
	if err != nil {
		return err
	}

	var balance int
	changed := make([]Entry, 0, len(entries))
	for i := range entries {
		balance += entries[i].DeltaCents()
		if entries[i].KassenstandCents != balance {
			entries[i].KassenstandCents = balance
			changed = append(changed, entries[i])
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return svc.repo.SaveBalances(ctx, changed)
}

// LogPayment posts a settled payment into the automatic cash book exactly
// once; repeat calls find the marker and return the existing entry.
func (svc *Service) LogPayment(ctx context.Context, paymentID, amountCents int, method, userName string, paidAt time.Time, createdBy string) (Entry, error) {
	if amountCents <= 0 {
		return Entry{}, errors.New("payment amount must be positive")
	}
	company := svc.conf.Cashbook.AutoCompany

	marker := fmt.Sprintf("payment_id:%d", paymentID)
	existing, err := svc.repo.GetEntryByBemerkung(ctx, company, marker)
	switch errors.Cause(err) {
	case nil:
		return existing, nil
	case ErrEntryNotFound:
	default:
		return Entry{}, err
	}

	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	if createdBy == "" {
		createdBy = "System"
	}
	return svc.AddEntry(ctx, NewEntry{
		Company:        company,
		EntryDate:      paidAt,
		Bemerkung:      marker,
		Posten:         describePayment(method, userName),
		EinnahmenCents: amountCents,
		CreatedBy:      createdBy,
	})
}

func describePayment(method, userName string) string {
	label, ok := methodLabels[method]
	if !ok {
		label = strings.Title(method)
	}
	if userName == "" {
		userName = "Unbekannt"
	}
	return fmt.Sprintf("%s-Zahlung %s", label, userName)
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
