package dummydb

import (
	"context"

	"github.com/laurinbuild/kantine/core/theme"
)

type settingsRepository struct {
	db *settingsTable
}

var _ theme.SettingsRepository = (*settingsRepository)(nil)

func NewSettingsRepository(db *DB) theme.SettingsRepository {
	return &settingsRepository{db: db.settings}
}

func (repo *settingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if value, ok := repo.db.table[key]; ok {
		return value, nil
	}
	return "", theme.ErrNotFound
}

func (repo *settingsRepository) SetSetting(ctx context.Context, key, value string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[key] = value
	return nil
}
