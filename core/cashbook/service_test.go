package cashbook

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurinbuild/kantine/core"
)

func TestMain(m *testing.M) {
	validate := validator.New()
	enLoc := en.New()
	translator, _ := ut.New(enLoc, enLoc).GetTranslator("en")
	core.InitValidators(validate, translator)
	os.Exit(m.Run())
}

type memRepo struct {
	entries map[int]Entry
	nextID  int
}

func newMemRepo() *memRepo { return &memRepo{entries: make(map[int]Entry)} }

func (r *memRepo) chainOrder(company string) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Company == company {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memRepo) CreateEntry(_ context.Context, entry Entry) (Entry, error) {
	r.nextID++
	entry.ID = r.nextID
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memRepo) GetEntryByID(_ context.Context, id int) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memRepo) QueryEntries(_ context.Context, company string) ([]Entry, error) {
	return r.chainOrder(company), nil
}

func (r *memRepo) GetEntryByBemerkung(_ context.Context, company, bemerkung string) (Entry, error) {
	for _, e := range r.entries {
		if e.Company == company && e.Bemerkung.String == bemerkung {
			return e, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (r *memRepo) LastEntry(_ context.Context, company string) (Entry, error) {
	chain := r.chainOrder(company)
	if len(chain) == 0 {
		return Entry{}, ErrEntryNotFound
	}
	return chain[len(chain)-1], nil
}

func (r *memRepo) MaxBelegNummer(_ context.Context, company string) (int, error) {
	var max int
	for _, e := range r.entries {
		if e.Company == company && e.BelegNummer > max {
			max = e.BelegNummer
		}
	}
	return max, nil
}

func (r *memRepo) UpdateEntry(_ context.Context, entry Entry) (Entry, error) {
	if _, ok := r.entries[entry.ID]; !ok {
		return Entry{}, ErrEntryNotFound
	}
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memRepo) DeleteEntryByID(_ context.Context, id int) error {
	delete(r.entries, id)
	return nil
}

func (r *memRepo) SaveBalances(_ context.Context, entries []Entry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	conf := &core.Config{
		Cashbook: core.CashbookConfig{AutoCompany: "Kaffeemaschine", SummaryCompany: "Schuelerfirma"},
	}
	return NewService(repo, conf), repo
}

func day(d int) time.Time {
	return time.Date(2026, time.August, d, 0, 0, 0, 0, time.UTC)
}

// assertChain checks the running-balance invariant over a company's entries.
func assertChain(t *testing.T, repo *memRepo, company string) {
	t.Helper()
	var balance int
	for _, e := range repo.chainOrder(company) {
		balance += e.DeltaCents()
		assert.Equal(t, balance, e.KassenstandCents, "broken balance chain at entry %d", e.ID)
	}
}

func TestServiceAddEntry(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	first, err := svc.AddEntry(ctx, NewEntry{
		Company: "Schuelerfirma", EntryDate: day(1), Posten: "Wechselgeld", EinnahmenCents: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.BelegNummer)
	assert.Equal(t, 5000, first.KassenstandCents)

	second, err := svc.AddEntry(ctx, NewEntry{
		Company: "Schuelerfirma", EntryDate: day(3), Posten: "Milch", AusgabenCents: 1200,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.BelegNummer)
	assert.Equal(t, 3800, second.KassenstandCents)

	balance, err := svc.CurrentBalance(ctx, "Schuelerfirma")
	require.NoError(t, err)
	assert.Equal(t, 3800, balance)

	t.Run("beleg sequence is per company", func(t *testing.T) {
		other, err := svc.AddEntry(ctx, NewEntry{
			Company: "Kaffeemaschine", EntryDate: day(2), Posten: "Bohnen", AusgabenCents: 900,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, other.BelegNummer)
		assert.Equal(t, -900, other.KassenstandCents)
	})

	t.Run("backdated entry re-chains everything after it", func(t *testing.T) {
		back, err := svc.AddEntry(ctx, NewEntry{
			Company: "Schuelerfirma", EntryDate: day(2), Posten: "Kuchenverkauf", EinnahmenCents: 2000,
		})
		require.NoError(t, err)
		assert.Equal(t, 7000, back.KassenstandCents)

		updated, err := svc.repo.GetEntryByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, 5800, updated.KassenstandCents)
		assertChain(t, repo, "Schuelerfirma")
	})
}

func TestServiceUpdateEntryRechains(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	a, _ := svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(1), Posten: "A", EinnahmenCents: 1000})
	b, _ := svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(2), Posten: "B", EinnahmenCents: 500})
	c, _ := svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(3), Posten: "C", AusgabenCents: 300})
	assert.Equal(t, 1200, c.KassenstandCents)

	newIncome := 2000
	_, err := svc.UpdateEntry(ctx, a.ID, UpdateEntry{EinnahmenCents: &newIncome})
	require.NoError(t, err)

	c2, _ := svc.repo.GetEntryByID(ctx, c.ID)
	assert.Equal(t, 2200, c2.KassenstandCents)
	assertChain(t, repo, "Schuelerfirma")

	t.Run("date change reorders the chain", func(t *testing.T) {
		moved := day(9)
		_, err := svc.UpdateEntry(ctx, b.ID, UpdateEntry{EntryDate: &moved})
		require.NoError(t, err)
		assertChain(t, repo, "Schuelerfirma")

		last, err := svc.repo.LastEntry(ctx, "Schuelerfirma")
		require.NoError(t, err)
		assert.Equal(t, b.ID, last.ID, "entry moved to the latest date must close the chain")
	})
}

func TestServiceDeleteEntryRechains(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	a, _ := svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(1), Posten: "A", EinnahmenCents: 1000})
	_, _ = svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(2), Posten: "B", AusgabenCents: 250})
	c, _ := svc.AddEntry(ctx, NewEntry{Company: "Schuelerfirma", EntryDate: day(3), Posten: "C", EinnahmenCents: 100})
	assert.Equal(t, 850, c.KassenstandCents)

	require.NoError(t, svc.DeleteEntry(ctx, a.ID))
	assertChain(t, repo, "Schuelerfirma")

	balance, err := svc.CurrentBalance(ctx, "Schuelerfirma")
	require.NoError(t, err)
	assert.Equal(t, -150, balance)

	assert.Equal(t, ErrEntryNotFound, svc.DeleteEntry(ctx, a.ID))
}

func TestServiceLogPayment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService()

	entry, err := svc.LogPayment(ctx, 42, 750, "paypal", "Ada Lovelace", day(5), "")
	require.NoError(t, err)
	assert.Equal(t, "Kaffeemaschine", entry.Company)
	assert.Equal(t, "payment_id:42", entry.Bemerkung.String)
	assert.Equal(t, "PayPal-Zahlung Ada Lovelace", entry.Posten)
	assert.Equal(t, 750, entry.EinnahmenCents)
	assert.Equal(t, "System", entry.CreatedBy.String)

	t.Run("idempotent", func(t *testing.T) {
		again, err := svc.LogPayment(ctx, 42, 750, "paypal", "Ada Lovelace", day(5), "")
		require.NoError(t, err)
		assert.Equal(t, entry.ID, again.ID)
		assert.Len(t, repo.entries, 1)
	})

	t.Run("cash label", func(t *testing.T) {
		cash, err := svc.LogPayment(ctx, 43, 300, "cash", "Bob Beamer", day(6), "Laurin")
		require.NoError(t, err)
		assert.Equal(t, "Bar-Zahlung Bob Beamer", cash.Posten)
		assert.Equal(t, "Laurin", cash.CreatedBy.String)
		assertChain(t, repo, "Kaffeemaschine")
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, err := svc.LogPayment(ctx, 44, 0, "cash", "Bob Beamer", day(6), "")
		assert.Error(t, err)
	})
}
