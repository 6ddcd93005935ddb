package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
)

var (
	// errors
	ErrNotFound     = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	ErrRoleInUse    = errors.New("role is still assigned to users")
	ErrItslIDExists = errors.New("a user with this itslearning ID already exists")
	ErrNoPIN        = errors.New("no PIN set")
	ErrPINSet       = errors.New("PIN already set")
	ErrPINMismatch  = errors.New("wrong PIN")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int) (User, error)
		GetUserByItslID(ctx context.Context, itslID int) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on first or last name.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUserByID(ctx context.Context, id int) error

		CreateRole(ctx context.Context, role Role) (Role, error)
		QueryAllRoles(ctx context.Context) ([]Role, error)
		GetRoleByID(ctx context.Context, id int) (Role, error)
		GetRoleByName(ctx context.Context, name string) (Role, error)
		// DeleteRoleByID fails with ErrRoleInUse while users reference the role.
		DeleteRoleByID(ctx context.Context, id int) error

		QueryLeaderboard(ctx context.Context, from, to time.Time) ([]LeaderboardEntry, error)
	}

	// PINArchive survives database restores; see ArchiveIdentifier.
	PINArchive interface {
		StorePIN(ctx context.Context, identifier string, hash []byte) error
		GetPIN(ctx context.Context, identifier string) ([]byte, error) // ErrNoPIN when absent
		DeletePIN(ctx context.Context, identifier string) error
	}

	Service struct {
		repo    Repository
		archive PINArchive
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, archive PINArchive, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		archive: archive,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if _, err := svc.repo.GetRoleByID(ctx, nu.RoleID); err != nil {
		return User{}, err
	}
	if nu.ItslID != 0 {
		if _, err := svc.repo.GetUserByItslID(ctx, nu.ItslID); err == nil {
			return User{}, core.NewValidationError(ErrItslIDExists,
				core.FieldError{Field: "itsl_id", Error: ErrItslIDExists.Error()})
		} else if errors.Cause(err) != ErrNotFound {
			return User{}, err
		}
	}

	now := time.Now().UTC()
	usr := User{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		RoleID:    nu.RoleID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nu.Email != "" {
		usr.Email.SetValid(nu.Email)
	}
	if nu.ItslID != 0 {
		usr.ItslID.SetValid(nu.ItslID)
	}
	if nu.PIN != "" {
		usr.SetPIN(NormalizePIN(nu.PIN))
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	if usr.HasPIN() {
		svc.archivePIN(ctx, usr)
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) Update(ctx context.Context, id int, uu UpdateUser) (User, error) {
	orig, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err = uu.Validate(orig); err != nil {
		return User{}, err
	}

	usr := orig
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	if uu.Email != "" {
		usr.Email.SetValid(uu.Email)
	}
	if uu.ItslID != nil {
		if *uu.ItslID == 0 {
			usr.ItslID.Valid = false
		} else {
			usr.ItslID.SetValid(*uu.ItslID)
		}
	}
	if uu.RoleID != nil {
		if _, err = svc.repo.GetRoleByID(ctx, *uu.RoleID); err != nil {
			return User{}, err
		}
		usr.RoleID = *uu.RoleID
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

// Delete removes a user and their archived PIN. Consumptions and invoices
// cascade in the database.
func (svc *Service) Delete(ctx context.Context, id int) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if identifier := ArchiveIdentifier(usr); identifier != "" {
		if err = svc.archive.DeletePIN(ctx, identifier); err != nil {
			return errors.Wrap(err, "deleting archived PIN")
		}
	}
	return svc.repo.DeleteUserByID(ctx, id)
}

// Roles

func (svc *Service) CreateRole(ctx context.Context, nr NewRole) (Role, error) {
	if _, err := svc.repo.GetRoleByName(ctx, nr.Name); err == nil {
		return Role{}, core.NewValidationError(errors.New("a role with this name already exists"),
			core.FieldError{Field: "name", Error: "a role with this name already exists"})
	} else if errors.Cause(err) != ErrRoleNotFound {
		return Role{}, err
	}
	return svc.repo.CreateRole(ctx, Role{Name: nr.Name})
}

func (svc *Service) QueryAllRoles(ctx context.Context) ([]Role, error) {
	return svc.repo.QueryAllRoles(ctx)
}

func (svc *Service) DeleteRole(ctx context.Context, id int) error {
	role, err := svc.repo.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == GuestsRole {
		return ErrRoleInUse
	}
	return svc.repo.DeleteRoleByID(ctx, id)
}

// PINs

// HasPIN reports whether a user can already identify with a PIN, restoring it
// from the archive first if the user row lost its hash (DB restore).
func (svc *Service) HasPIN(ctx context.Context, id int) (bool, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	if usr.HasPIN() {
		return true, nil
	}
	restored, err := svc.restorePIN(ctx, &usr)
	if err != nil {
		return false, err
	}
	return restored, nil
}

// SetPIN sets a user's PIN through the public kiosk flow; it refuses to
// overwrite an existing one (admins go through ResetPIN).
func (svc *Service) SetPIN(ctx context.Context, id int, pin string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if !usr.HasPIN() {
		// the row may have lost its hash on restore; the archive still counts
		if _, err = svc.restorePIN(ctx, &usr); err != nil {
			return err
		}
	}
	if usr.HasPIN() {
		return ErrPINSet
	}

	usr.SetPIN(NormalizePIN(pin))
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr, nil); err != nil {
		return err
	}
	svc.archivePIN(ctx, usr)
	return nil
}

// ResetPIN sets or replaces a PIN unconditionally (admin/CLI use); an empty
// pin clears it along with the archive entry.
func (svc *Service) ResetPIN(ctx context.Context, id int, pin string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if pin = NormalizePIN(pin); pin == "" {
		usr.PINHash.Valid = false
		usr.PINHash.Bytes = nil
	} else {
		usr.SetPIN(pin)
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr, nil); err != nil {
		return err
	}

	identifier := ArchiveIdentifier(usr)
	if identifier == "" {
		return nil
	}
	if usr.HasPIN() {
		return errors.Wrap(svc.archive.StorePIN(ctx, identifier, usr.PINHash.Bytes), "archiving PIN")
	}
	return errors.Wrap(svc.archive.DeletePIN(ctx, identifier), "deleting archived PIN")
}

// VerifyPIN checks a PIN attempt, restoring the hash from the archive when
// missing.
func (svc *Service) VerifyPIN(ctx context.Context, attempt PINAttempt) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, attempt.UserID)
	if err != nil {
		return User{}, err
	}
	if !usr.HasPIN() {
		if _, err = svc.restorePIN(ctx, &usr); err != nil {
			return User{}, err
		}
	}
	if err = usr.CheckPIN(NormalizePIN(attempt.PIN)); err != nil {
		return User{}, err
	}
	return usr, nil
}

// BackfillPINArchive ensures every user with a PIN has an archive entry.
// Safe to run repeatedly.
func (svc *Service) BackfillPINArchive(ctx context.Context) (int, error) {
	users, err := svc.repo.QueryUsers(ctx, QueryFilter{})
	if err != nil {
		return 0, err
	}
	var added int
	for i := range users {
		usr := users[i]
		if !usr.HasPIN() {
			continue
		}
		identifier := ArchiveIdentifier(usr)
		if identifier == "" {
			continue
		}
		if _, err = svc.archive.GetPIN(ctx, identifier); err == nil {
			continue
		} else if errors.Cause(err) != ErrNoPIN {
			return added, err
		}
		if err = svc.archive.StorePIN(ctx, identifier, usr.PINHash.Bytes); err != nil {
			return added, errors.Wrap(err, "archiving PIN")
		}
		added++
	}
	return added, nil
}

// Leaderboard ranks users by consumption quantity for the month containing t.
func (svc *Service) Leaderboard(ctx context.Context, t time.Time) ([]LeaderboardEntry, error) {
	from, to := core.MonthBounds(t.Year(), t.Month())
	return svc.repo.QueryLeaderboard(ctx, from, to)
}

// SendStatement emails a user their monthly statement when they have an
// email address on file.
func (svc *Service) SendStatement(ctx context.Context, usr User, subject string, data interface{}, attachments ...core.Attachment) {
	if !usr.Email.Valid || usr.Email.String == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email.String}},
		Subject:      subject,
		TemplateName: "statement",
		TemplateData: data,
		Attachments:  attachments,
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *Service) archivePIN(ctx context.Context, usr User) {
	identifier := ArchiveIdentifier(usr)
	if identifier == "" || !usr.HasPIN() {
		return
	}
	// archive failures must not break the user flow; the backfill catches up
	_ = svc.archive.StorePIN(ctx, identifier, usr.PINHash.Bytes)
}

func (svc *Service) restorePIN(ctx context.Context, usr *User) (bool, error) {
	identifier := ArchiveIdentifier(*usr)
	if identifier == "" {
		return false, nil
	}
	hash, err := svc.archive.GetPIN(ctx, identifier)
	switch errors.Cause(err) {
	case nil:
	case ErrNoPIN:
		return false, nil
	default:
		return false, errors.Wrap(err, fmt.Sprintf("restoring PIN for %q", identifier))
	}

	usr.PINHash.SetValid(hash)
	usr.UpdatedAt = time.Now().UTC()
	if *usr, err = svc.repo.UpdateUser(ctx, *usr, nil); err != nil {
		return false, err
	}
	return true, nil
}
