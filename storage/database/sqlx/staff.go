package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/staff"
)

type StaffRepository struct {
	db *sqlx.DB
}

func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

func (repo *StaffRepository) CreateAccessLog(ctx context.Context, entry staff.AccessLog) (staff.AccessLog, error) {
	q := `
INSERT INTO admin_access_logs (ip_address, user_agent, device_name, token_fingerprint, success, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		entry.IPAddress, entry.UserAgent, entry.DeviceName, entry.TokenFingerprint,
		entry.Success, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return staff.AccessLog{}, errors.Wrap(err, "inserting access log")
	}
	return entry, nil
}

func (repo *StaffRepository) QueryAccessLogs(ctx context.Context, limit int) ([]staff.AccessLog, error) {
	q := `
SELECT id, ip_address, user_agent, device_name, token_fingerprint, success, created_at
FROM admin_access_logs
ORDER BY created_at DESC, id DESC
LIMIT $1`
	logs := make([]staff.AccessLog, 0)
	if err := repo.db.SelectContext(ctx, &logs, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying access logs")
	}
	return logs, nil
}
