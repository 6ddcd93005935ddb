package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/theme"
)

type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (repo *SettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := repo.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return "", theme.ErrNotFound
	}
	return value, errors.Wrap(err, "getting setting")
}

func (repo *SettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	q := `
INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now() AT TIME ZONE 'utc'`
	_, err := repo.db.ExecContext(ctx, q, key, value)
	return errors.Wrap(err, "storing setting")
}
