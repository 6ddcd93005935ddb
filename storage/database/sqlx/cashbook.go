package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/cashbook"
)

const cashbookColumns = `id, company, beleg_nummer, entry_date, bemerkung, posten,
einnahmen_bar_cents, ausgaben_bar_cents, kassenstand_bar_cents, created_by, created_at, updated_at`

type CashbookRepository struct {
	db *sqlx.DB
}

func NewCashbookRepository(db *sqlx.DB) *CashbookRepository {
	return &CashbookRepository{db: db}
}

func (repo *CashbookRepository) CreateEntry(ctx context.Context, entry cashbook.Entry) (cashbook.Entry, error) {
	q := `
INSERT INTO cashbook_entries (company, beleg_nummer, entry_date, bemerkung, posten,
    einnahmen_bar_cents, ausgaben_bar_cents, kassenstand_bar_cents, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		entry.Company, entry.BelegNummer, entry.EntryDate, entry.Bemerkung, entry.Posten,
		entry.EinnahmenCents, entry.AusgabenCents, entry.KassenstandCents,
		entry.CreatedBy, entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return cashbook.Entry{}, errors.Wrap(err, "inserting cash book entry")
	}
	return entry, nil
}

func (repo *CashbookRepository) GetEntryByID(ctx context.Context, id int) (cashbook.Entry, error) {
	var entry cashbook.Entry
	err := repo.db.GetContext(ctx, &entry,
		`SELECT `+cashbookColumns+` FROM cashbook_entries WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return cashbook.Entry{}, cashbook.ErrEntryNotFound
	}
	return entry, errors.Wrap(err, "getting cash book entry")
}

func (repo *CashbookRepository) QueryEntries(ctx context.Context, company string) ([]cashbook.Entry, error) {
	entries := make([]cashbook.Entry, 0)
	err := repo.db.SelectContext(ctx, &entries,
		`SELECT `+cashbookColumns+` FROM cashbook_entries WHERE company = $1 ORDER BY entry_date, id`, company)
	if err != nil {
		return nil, errors.Wrap(err, "querying cash book entries")
	}
	return entries, nil
}

func (repo *CashbookRepository) GetEntryByBemerkung(ctx context.Context, company, bemerkung string) (cashbook.Entry, error) {
	var entry cashbook.Entry
	err := repo.db.GetContext(ctx, &entry,
		`SELECT `+cashbookColumns+` FROM cashbook_entries WHERE company = $1 AND bemerkung = $2`, company, bemerkung)
	if err == sql.ErrNoRows {
		return cashbook.Entry{}, cashbook.ErrEntryNotFound
	}
	return entry, errors.Wrap(err, "getting cash book entry by bemerkung")
}

func (repo *CashbookRepository) LastEntry(ctx context.Context, company string) (cashbook.Entry, error) {
	var entry cashbook.Entry
	err := repo.db.GetContext(ctx, &entry,
		`SELECT `+cashbookColumns+` FROM cashbook_entries WHERE company = $1 ORDER BY entry_date DESC, id DESC LIMIT 1`, company)
	if err == sql.ErrNoRows {
		return cashbook.Entry{}, cashbook.ErrEntryNotFound
	}
	return entry, errors.Wrap(err, "getting last cash book entry")
}

func (repo *CashbookRepository) MaxBelegNummer(ctx context.Context, company string) (int, error) {
	var max int
	err := repo.db.GetContext(ctx, &max,
		`SELECT COALESCE(MAX(beleg_nummer), 0) FROM cashbook_entries WHERE company = $1`, company)
	return max, errors.Wrap(err, "getting max beleg nummer")
}

func (repo *CashbookRepository) UpdateEntry(ctx context.Context, entry cashbook.Entry) (cashbook.Entry, error) {
	q := `
UPDATE cashbook_entries
SET entry_date = $1, bemerkung = $2, posten = $3, einnahmen_bar_cents = $4,
    ausgaben_bar_cents = $5, kassenstand_bar_cents = $6, updated_at = $7
WHERE id = $8`
	res, err := repo.db.ExecContext(ctx, q,
		entry.EntryDate, entry.Bemerkung, entry.Posten, entry.EinnahmenCents,
		entry.AusgabenCents, entry.KassenstandCents, entry.UpdatedAt, entry.ID)
	if err != nil {
		return cashbook.Entry{}, errors.Wrap(err, "updating cash book entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cashbook.Entry{}, cashbook.ErrEntryNotFound
	}
	return entry, nil
}

func (repo *CashbookRepository) DeleteEntryByID(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM cashbook_entries WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting cash book entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cashbook.ErrEntryNotFound
	}
	return nil
}

func (repo *CashbookRepository) SaveBalances(ctx context.Context, entries []cashbook.Entry) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range entries {
		_, err = tx.ExecContext(ctx,
			`UPDATE cashbook_entries SET kassenstand_bar_cents = $1 WHERE id = $2`,
			entry.KassenstandCents, entry.ID)
		if err != nil {
			return errors.Wrap(err, "saving running balance")
		}
	}
	return errors.Wrap(tx.Commit(), "committing running balances")
}
