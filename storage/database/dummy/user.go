package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/laurinbuild/kantine/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) roleName(roleID int) string {
	if role, ok := repo.db.roles[roleID]; ok {
		return role.Name
	}
	return ""
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if usr.ItslID.Valid {
		for _, u := range repo.db.users {
			if u.ItslID.Valid && u.ItslID.Int == usr.ItslID.Int {
				return user.User{}, user.ErrItslIDExists
			}
		}
	}

	repo.db.usersPK++
	usr.ID = repo.db.usersPK
	usr.RoleName = repo.roleName(usr.RoleID)
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByItslID(ctx context.Context, itslID int) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.users {
		if usr.ItslID.Valid && usr.ItslID.Int == itslID {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(usr.FirstName), s) &&
				!strings.Contains(strings.ToLower(usr.LastName), s) {
				continue
			}
		}
		if filter.RoleID != 0 && usr.RoleID != filter.RoleID {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, *usr)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		return users[i].FirstName < users[j].FirstName
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		usr.IsActive = *isActive
	}
	usr.RoleName = repo.roleName(usr.RoleID)
	usr.UpdatedAt = time.Now().UTC()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUserByID(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(repo.db.users, id)
	return nil
}

func (repo *userRepository) CreateRole(ctx context.Context, role user.Role) (user.Role, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.rolesPK++
	role.ID = repo.db.rolesPK
	repo.db.roles[role.ID] = &role
	return role, nil
}

func (repo *userRepository) QueryAllRoles(ctx context.Context) ([]user.Role, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	roles := make([]user.Role, 0, len(repo.db.roles))
	for _, role := range repo.db.roles {
		roles = append(roles, *role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (repo *userRepository) GetRoleByID(ctx context.Context, id int) (user.Role, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if role, ok := repo.db.roles[id]; ok {
		return *role, nil
	}
	return user.Role{}, user.ErrRoleNotFound
}

func (repo *userRepository) GetRoleByName(ctx context.Context, name string) (user.Role, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, role := range repo.db.roles {
		if role.Name == name {
			return *role, nil
		}
	}
	return user.Role{}, user.ErrRoleNotFound
}

func (repo *userRepository) DeleteRoleByID(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.roles[id]; !ok {
		return user.ErrRoleNotFound
	}
	for _, usr := range repo.db.users {
		if usr.RoleID == id {
			return user.ErrRoleInUse
		}
	}
	delete(repo.db.roles, id)
	return nil
}

func (repo *userRepository) QueryLeaderboard(ctx context.Context, from, to time.Time) ([]user.LeaderboardEntry, error) {
	return []user.LeaderboardEntry{}, nil // no consumption tracking in dummydb
}

// QueryAllRoleIDs satisfies catalog.RoleLister.
func (repo *userRepository) QueryAllRoleIDs(ctx context.Context) ([]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := make([]int, 0, len(repo.db.roles))
	for id := range repo.db.roles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

type pinArchive struct {
	db *userTable
}

var _ user.PINArchive = (*pinArchive)(nil)

func NewPINArchive(db *DB) user.PINArchive {
	return &pinArchive{db: db.user}
}

func (a *pinArchive) StorePIN(ctx context.Context, identifier string, hash []byte) error {
	a.db.Lock()
	defer a.db.Unlock()
	a.db.pins[identifier] = hash
	return nil
}

func (a *pinArchive) GetPIN(ctx context.Context, identifier string) ([]byte, error) {
	a.db.RLock()
	defer a.db.RUnlock()

	if hash, ok := a.db.pins[identifier]; ok {
		return hash, nil
	}
	return nil, user.ErrNoPIN
}

func (a *pinArchive) DeletePIN(ctx context.Context, identifier string) error {
	a.db.Lock()
	defer a.db.Unlock()
	delete(a.db.pins, identifier)
	return nil
}
