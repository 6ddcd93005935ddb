package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/user"
)

const userColumns = `u.id, u.itsl_id, u.role_id, r.name AS role_name, u.first_name, u.last_name,
u.email, u.pin_hash, u.is_active, u.created_at, u.updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (repo *UserRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
INSERT INTO users (itsl_id, role_id, first_name, last_name, email, pin_hash, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		usr.ItslID, usr.RoleID, usr.FirstName, usr.LastName, usr.Email, usr.PINHash,
		usr.IsActive, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrItslIDExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *UserRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`, id)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user")
}

func (repo *UserRepository) GetUserByItslID(ctx context.Context, itslID int) (user.User, error) {
	var usr user.User
	err := repo.db.GetContext(ctx, &usr,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.itsl_id = $1`, itslID)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return usr, errors.Wrap(err, "getting user by itsl id")
}

func (repo *UserRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id WHERE 1=1`
	var args []interface{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		q += ` AND (u.first_name ILIKE $1 OR u.last_name ILIKE $1)`
	}
	if filter.RoleID != 0 {
		args = append(args, filter.RoleID)
		q += ` AND u.role_id = ` + dollar(len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		q += ` AND u.is_active = ` + dollar(len(args))
	}
	q += ` ORDER BY u.last_name, u.first_name`

	users := make([]user.User, 0)
	if err := repo.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *UserRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = *isActive
	}
	q := `
UPDATE users
SET itsl_id = $1, role_id = $2, first_name = $3, last_name = $4, email = $5,
    pin_hash = $6, is_active = $7, updated_at = $8
WHERE id = $9`
	res, err := repo.db.ExecContext(ctx, q,
		usr.ItslID, usr.RoleID, usr.FirstName, usr.LastName, usr.Email,
		usr.PINHash, usr.IsActive, time.Now().UTC(), usr.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrItslIDExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *UserRepository) DeleteUserByID(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *UserRepository) CreateRole(ctx context.Context, role user.Role) (user.Role, error) {
	err := repo.db.QueryRowContext(ctx,
		`INSERT INTO roles (name) VALUES ($1) RETURNING id`, role.Name).Scan(&role.ID)
	if err != nil {
		return user.Role{}, errors.Wrap(err, "inserting role")
	}
	return role, nil
}

func (repo *UserRepository) QueryAllRoles(ctx context.Context) ([]user.Role, error) {
	roles := make([]user.Role, 0)
	err := repo.db.SelectContext(ctx, &roles, `SELECT id, name FROM roles ORDER BY name`)
	return roles, errors.Wrap(err, "querying roles")
}

func (repo *UserRepository) GetRoleByID(ctx context.Context, id int) (user.Role, error) {
	var role user.Role
	err := repo.db.GetContext(ctx, &role, `SELECT id, name FROM roles WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return user.Role{}, user.ErrRoleNotFound
	}
	return role, errors.Wrap(err, "getting role")
}

func (repo *UserRepository) GetRoleByName(ctx context.Context, name string) (user.Role, error) {
	var role user.Role
	err := repo.db.GetContext(ctx, &role, `SELECT id, name FROM roles WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return user.Role{}, user.ErrRoleNotFound
	}
	return role, errors.Wrap(err, "getting role by name")
}

func (repo *UserRepository) DeleteRoleByID(ctx context.Context, id int) error {
	var inUse bool
	err := repo.db.GetContext(ctx, &inUse,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role_id = $1)`, id)
	if err != nil {
		return errors.Wrap(err, "checking role usage")
	}
	if inUse {
		return user.ErrRoleInUse
	}

	res, err := repo.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting role")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrRoleNotFound
	}
	return nil
}

func (repo *UserRepository) QueryLeaderboard(ctx context.Context, from, to time.Time) ([]user.LeaderboardEntry, error) {
	q := `
SELECT u.id AS user_id, u.first_name, u.last_name, r.name AS role_name,
       COALESCE(SUM(c.quantity), 0) AS quantity
FROM users u
JOIN roles r ON r.id = u.role_id
JOIN consumptions c ON c.user_id = u.id
WHERE c.created_at >= $1 AND c.created_at < $2
GROUP BY u.id, u.first_name, u.last_name, r.name
ORDER BY quantity DESC, u.last_name, u.first_name`
	entries := make([]user.LeaderboardEntry, 0)
	if err := repo.db.SelectContext(ctx, &entries, q, from, to); err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}
	return entries, nil
}

// PINArchiveRepository persists PIN hashes keyed by a restore-stable user
// identifier instead of the user id.
type PINArchiveRepository struct {
	db *sqlx.DB
}

func NewPINArchiveRepository(db *sqlx.DB) *PINArchiveRepository {
	return &PINArchiveRepository{db: db}
}

func (repo *PINArchiveRepository) StorePIN(ctx context.Context, identifier string, hash []byte) error {
	q := `
INSERT INTO persistent_pins (user_identifier, pin_hash)
VALUES ($1, $2)
ON CONFLICT (user_identifier) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, updated_at = now() AT TIME ZONE 'utc'`
	_, err := repo.db.ExecContext(ctx, q, identifier, hash)
	return errors.Wrap(err, "storing archived pin")
}

func (repo *PINArchiveRepository) GetPIN(ctx context.Context, identifier string) ([]byte, error) {
	var hash []byte
	err := repo.db.GetContext(ctx, &hash,
		`SELECT pin_hash FROM persistent_pins WHERE user_identifier = $1`, identifier)
	if err == sql.ErrNoRows {
		return nil, user.ErrNoPIN
	}
	return hash, errors.Wrap(err, "getting archived pin")
}

func (repo *PINArchiveRepository) DeletePIN(ctx context.Context, identifier string) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM persistent_pins WHERE user_identifier = $1`, identifier)
	return errors.Wrap(err, "deleting archived pin")
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23505"
}

func dollar(n int) string {
	return "$" + strconv.Itoa(n)
}
