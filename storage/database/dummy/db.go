// Package dummydb backs the services with in-memory tables. API handler
// tests run against it instead of postgres.
package dummydb

import (
	"sync"

	"github.com/laurinbuild/kantine/core/staff"
	"github.com/laurinbuild/kantine/core/user"
)

type (
	DB struct {
		user     *userTable
		settings *settingsTable
		staff    *staffTable
	}

	userTable struct {
		sync.RWMutex
		users   map[int]*user.User
		roles   map[int]*user.Role
		pins    map[string][]byte
		usersPK int
		rolesPK int
	}

	settingsTable struct {
		sync.RWMutex
		table map[string]string
	}

	staffTable struct {
		sync.RWMutex
		logs   []staff.AccessLog
		logsPK int
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{
			users: make(map[int]*user.User),
			roles: make(map[int]*user.Role),
			pins:  make(map[string][]byte),
		},
		settings: &settingsTable{table: make(map[string]string)},
		staff:    &staffTable{},
	}

	// the migrations seed this role
	db.user.rolesPK++
	db.user.roles[db.user.rolesPK] = &user.Role{ID: db.user.rolesPK, Name: user.GuestsRole}
	return db, nil
}
