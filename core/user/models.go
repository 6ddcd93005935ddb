package user

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
)

// GuestsRole is seeded on migration; walk-in customers are booked on it.
const GuestsRole = "Guests"

type Role struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type User struct {
	ID        int       `json:"id" db:"id"`
	ItslID    null.Int  `json:"itsl_id" db:"itsl_id"`
	RoleID    int       `json:"role_id" db:"role_id"`
	RoleName  string    `json:"role" db:"role_name"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Email     null.String `json:"email" db:"email"`
	PINHash   null.Bytes  `json:"-" db:"pin_hash"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) HasPIN() bool {
	return len(u.PINHash.Bytes) > 0
}

func (u *User) SetPIN(pin string) {
	u.PINHash = null.BytesFrom(HashPIN(pin))
}

// CheckPIN compares pin against the stored digest in constant time.
func (u *User) CheckPIN(pin string) error {
	if !u.HasPIN() {
		return ErrNoPIN
	}
	if !comparePINHash(u.PINHash.Bytes, pin) {
		return ErrPINMismatch
	}
	return nil
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	ItslID    int    `json:"itsl_id"`
	RoleID    int    `json:"role_id" validate:"required"`
	PIN       string `json:"pin" validate:"omitempty,pin"`
}

func (nu *NewUser) Validate() error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	return core.Validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"omitempty,email"`
	ItslID    *int   `json:"itsl_id"`
	RoleID    *int   `json:"role_id"`
	IsActive  *bool  `json:"is_active"`
}

func (uu *UpdateUser) Validate(orig User) error {
	if name := core.CleanString(uu.FirstName); name != "" {
		uu.FirstName = name
	} else {
		uu.FirstName = orig.FirstName
	}
	if name := core.CleanString(uu.LastName); name != "" {
		uu.LastName = name
	} else {
		uu.LastName = orig.LastName
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = orig.Email.String
	}
	return core.Validate.Struct(uu)
}

// NewRole contains information needed to create a new Role.
type NewRole struct {
	Name string `json:"name" validate:"required,alphanum_"`
}

func (nr *NewRole) Validate() error {
	nr.Name = core.CleanString(nr.Name)
	return core.Validate.Struct(nr)
}

// PINAttempt is a PIN check request for a known user.
type PINAttempt struct {
	UserID int    `json:"user_id" validate:"required"`
	PIN    string `json:"pin" validate:"required,pin"`
}

func (pa *PINAttempt) Validate() error { return core.Validate.Struct(pa) }

type QueryFilter struct {
	Search   string `query:"search"`
	RoleID   int    `query:"role_id"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.RoleID == 0 && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// LeaderboardEntry is a user ranked by current-month consumption.
type LeaderboardEntry struct {
	UserID    int    `json:"user_id" db:"user_id"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	RoleName  string `json:"role" db:"role_name"`
	Quantity  int    `json:"quantity" db:"quantity"`
}
