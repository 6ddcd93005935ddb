package order

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/catalog"
	"github.com/laurinbuild/kantine/core/user"
)

var (
	// errors
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvoiceExists    = errors.New("invoice already exists for this user and period")
	ErrBeverageInactive = errors.New("beverage not found or inactive")
)

type (
	Repository interface {
		GetInvoice(ctx context.Context, userID int, period time.Time) (Invoice, error)
		GetInvoiceByID(ctx context.Context, id int) (Invoice, error)
		// CountInvoices counts invoices in a period; the sequence number of the
		// next invoice name derives from it.
		CountInvoices(ctx context.Context, period time.Time) (int, error)
		// CreateInvoice returns ErrInvoiceExists on a (user, period) or name
		// unique violation.
		CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
		UpdateInvoiceStatus(ctx context.Context, id int, status string) error

		CreateConsumption(ctx context.Context, c Consumption) (Consumption, error)
		QueryConsumptions(ctx context.Context, userID int, from, to time.Time) ([]Consumption, error)
		// QueryBeverageSummaries aggregates per beverage; a zero from/to means
		// the full history.
		QueryBeverageSummaries(ctx context.Context, userID int, from, to time.Time) ([]BeverageSummary, error)

		QueryReportRows(ctx context.Context, from, to time.Time) ([]ReportRow, error)
		QueryUserSummaries(ctx context.Context, from, to time.Time) ([]UserSummary, error)
		GetReportSummary(ctx context.Context, from, to time.Time) (ReportSummary, error)
		QueryAvailableMonths(ctx context.Context) ([]Month, error)
	}

	// UserDirectory is the slice of the user domain ordering needs.
	UserDirectory interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	// Pricer resolves the unit price a consumption is booked at.
	Pricer interface {
		GetBeverage(ctx context.Context, id int) (catalog.Beverage, error)
		ResolvePrice(ctx context.Context, roleID, beverageID int, date time.Time) (catalog.RolePrice, int, error)
	}

	Service struct {
		repo    Repository
		users   UserDirectory
		catalog Pricer
	}
)

func NewService(repo Repository, users UserDirectory, cat Pricer) *Service {
	return &Service{repo: repo, users: users, catalog: cat}
}

// GetOrCreateInvoice returns the user's invoice for the month containing t,
// creating it when missing. Two kiosks booking the first coffee of the month
// at once race on the insert; the loser refetches the winner's row.
func (svc *Service) GetOrCreateInvoice(ctx context.Context, userID int, t time.Time) (Invoice, error) {
	period := core.MonthStart(t)

	inv, err := svc.repo.GetInvoice(ctx, userID, period)
	switch errors.Cause(err) {
	case nil:
		return inv, nil
	case ErrInvoiceNotFound:
	default:
		return Invoice{}, err
	}

	if _, err = svc.users.GetByID(ctx, userID); err != nil {
		return Invoice{}, err
	}

	count, err := svc.repo.CountInvoices(ctx, period)
	if err != nil {
		return Invoice{}, err
	}

	now := time.Now().UTC()
	inv, err = svc.repo.CreateInvoice(ctx, Invoice{
		UserID:    userID,
		Name:      InvoiceName(period, count+1),
		Status:    InvoiceDraft,
		Period:    period,
		CreatedAt: now,
		UpdatedAt: now,
	})
	switch errors.Cause(err) {
	case nil:
		return inv, nil
	case ErrInvoiceExists:
		return svc.repo.GetInvoice(ctx, userID, period)
	default:
		return Invoice{}, err
	}
}

// AddConsumption books a beverage for a user at the price effective today and
// attaches it to the monthly invoice.
func (svc *Service) AddConsumption(ctx context.Context, nc NewConsumption) (Consumption, error) {
	usr, err := svc.users.GetByID(ctx, nc.UserID)
	if err != nil {
		return Consumption{}, err
	}

	bev, err := svc.catalog.GetBeverage(ctx, nc.BeverageID)
	if err != nil {
		return Consumption{}, err
	}
	if !bev.IsActive {
		return Consumption{}, ErrBeverageInactive
	}

	now := time.Now().UTC()
	rp, cents, err := svc.catalog.ResolvePrice(ctx, usr.RoleID, nc.BeverageID, now)
	if err != nil {
		return Consumption{}, err
	}

	inv, err := svc.GetOrCreateInvoice(ctx, nc.UserID, now)
	if err != nil {
		return Consumption{}, err
	}

	return svc.repo.CreateConsumption(ctx, Consumption{
		UserID:         nc.UserID,
		BeverageID:     nc.BeverageID,
		RolePriceID:    rp.ID,
		InvoiceID:      inv.ID,
		Quantity:       nc.Quantity,
		UnitPriceCents: cents,
		CreatedAt:      now,
	})
}

// MonthSummary aggregates one user's consumption for the month containing t.
func (svc *Service) MonthSummary(ctx context.Context, userID int, t time.Time) ([]BeverageSummary, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	from, to := core.MonthBounds(t.Year(), t.Month())
	return svc.repo.QueryBeverageSummaries(ctx, userID, from, to)
}

// History aggregates one user's complete consumption history (admin view).
func (svc *Service) History(ctx context.Context, userID int) ([]BeverageSummary, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return svc.repo.QueryBeverageSummaries(ctx, userID, time.Time{}, time.Time{})
}

// MonthlyReport builds the full per-user-per-beverage report for a month.
func (svc *Service) MonthlyReport(ctx context.Context, year int, month time.Month) (MonthlyReport, error) {
	from, to := core.MonthBounds(year, month)

	rows, err := svc.repo.QueryReportRows(ctx, from, to)
	if err != nil {
		return MonthlyReport{}, err
	}
	userSummaries, err := svc.repo.QueryUserSummaries(ctx, from, to)
	if err != nil {
		return MonthlyReport{}, err
	}
	summary, err := svc.repo.GetReportSummary(ctx, from, to)
	if err != nil {
		return MonthlyReport{}, err
	}
	months, err := svc.repo.QueryAvailableMonths(ctx)
	if err != nil {
		return MonthlyReport{}, err
	}

	return MonthlyReport{
		Period:        from,
		Rows:          rows,
		UserSummaries: userSummaries,
		Summary:       summary,
		Months:        months,
	}, nil
}

// MarkInvoiceSent flags an invoice as sent out.
func (svc *Service) MarkInvoiceSent(ctx context.Context, id int) error {
	if _, err := svc.repo.GetInvoiceByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.UpdateInvoiceStatus(ctx, id, InvoiceSent)
}
