package dummydb

import (
	"context"

	"github.com/laurinbuild/kantine/core/staff"
)

type staffRepository struct {
	db *staffTable
}

var _ staff.Repository = (*staffRepository)(nil)

func NewStaffRepository(db *DB) staff.Repository {
	return &staffRepository{db: db.staff}
}

func (repo *staffRepository) CreateAccessLog(ctx context.Context, entry staff.AccessLog) (staff.AccessLog, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.logsPK++
	entry.ID = repo.db.logsPK
	repo.db.logs = append(repo.db.logs, entry)
	return entry, nil
}

func (repo *staffRepository) QueryAccessLogs(ctx context.Context, limit int) ([]staff.AccessLog, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	// newest first
	logs := make([]staff.AccessLog, 0, limit)
	for i := len(repo.db.logs) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, repo.db.logs[i])
	}
	return logs, nil
}
