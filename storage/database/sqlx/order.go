package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/order"
)

const invoiceColumns = `id, user_id, invoice_name, status, period, sent_at, due_at, created_at, updated_at`

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (repo *OrderRepository) GetInvoice(ctx context.Context, userID int, period time.Time) (order.Invoice, error) {
	var inv order.Invoice
	err := repo.db.GetContext(ctx, &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 AND period = $2`, userID, period)
	if err == sql.ErrNoRows {
		return order.Invoice{}, order.ErrInvoiceNotFound
	}
	return inv, errors.Wrap(err, "getting invoice")
}

func (repo *OrderRepository) GetInvoiceByID(ctx context.Context, id int) (order.Invoice, error) {
	var inv order.Invoice
	err := repo.db.GetContext(ctx, &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return order.Invoice{}, order.ErrInvoiceNotFound
	}
	return inv, errors.Wrap(err, "getting invoice by id")
}

func (repo *OrderRepository) CountInvoices(ctx context.Context, period time.Time) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM invoices WHERE period = $1`, period)
	return n, errors.Wrap(err, "counting invoices")
}

func (repo *OrderRepository) CreateInvoice(ctx context.Context, inv order.Invoice) (order.Invoice, error) {
	q := `
INSERT INTO invoices (user_id, invoice_name, status, period, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		inv.UserID, inv.Name, inv.Status, inv.Period, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return order.Invoice{}, order.ErrInvoiceExists
		}
		return order.Invoice{}, errors.Wrap(err, "inserting invoice")
	}
	return inv, nil
}

func (repo *OrderRepository) UpdateInvoiceStatus(ctx context.Context, id int, status string) error {
	q := `
UPDATE invoices
SET status = $1,
    sent_at = CASE WHEN $1 = 'sent' THEN now() AT TIME ZONE 'utc' ELSE sent_at END,
    updated_at = now() AT TIME ZONE 'utc'
WHERE id = $2`
	res, err := repo.db.ExecContext(ctx, q, status, id)
	if err != nil {
		return errors.Wrap(err, "updating invoice status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrInvoiceNotFound
	}
	return nil
}

func (repo *OrderRepository) CreateConsumption(ctx context.Context, c order.Consumption) (order.Consumption, error) {
	q := `
INSERT INTO consumptions (user_id, beverage_id, beverage_price_id, invoice_id, quantity, unit_price_cents, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		c.UserID, c.BeverageID, c.RolePriceID, c.InvoiceID, c.Quantity, c.UnitPriceCents, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return order.Consumption{}, errors.Wrap(err, "inserting consumption")
	}
	return c, nil
}

func (repo *OrderRepository) QueryConsumptions(ctx context.Context, userID int, from, to time.Time) ([]order.Consumption, error) {
	q := `
SELECT id, user_id, beverage_id, beverage_price_id, invoice_id, quantity, unit_price_cents, created_at
FROM consumptions
WHERE user_id = $1`
	args := []interface{}{userID}
	q, args = timeWindow(q, args, "created_at", from, to)
	q += ` ORDER BY created_at`

	cs := make([]order.Consumption, 0)
	if err := repo.db.SelectContext(ctx, &cs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying consumptions")
	}
	return cs, nil
}

func (repo *OrderRepository) QueryBeverageSummaries(ctx context.Context, userID int, from, to time.Time) ([]order.BeverageSummary, error) {
	q := `
SELECT c.beverage_id,
       b.name AS beverage_name,
       COUNT(*) AS count,
       COALESCE(SUM(c.quantity), 0) AS total_quantity,
       COALESCE(SUM(c.quantity * c.unit_price_cents), 0) AS total_cost_cents,
       MIN(c.created_at) AS first_consumption,
       MAX(c.created_at) AS last_consumption
FROM consumptions c
JOIN beverages b ON b.id = c.beverage_id
WHERE c.user_id = $1`
	args := []interface{}{userID}
	q, args = timeWindow(q, args, "c.created_at", from, to)
	q += ` GROUP BY c.beverage_id, b.name ORDER BY b.name`

	sums := make([]order.BeverageSummary, 0)
	if err := repo.db.SelectContext(ctx, &sums, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying beverage summaries")
	}
	return sums, nil
}

func (repo *OrderRepository) QueryReportRows(ctx context.Context, from, to time.Time) ([]order.ReportRow, error) {
	q := `
SELECT u.first_name, u.last_name, u.email, r.name AS role_name,
       b.name AS beverage_name, b.category,
       COALESCE(SUM(c.quantity), 0) AS total_quantity,
       COUNT(*) AS consumption_count,
       COALESCE(SUM(c.quantity * c.unit_price_cents), 0) AS total_cost_cents,
       COALESCE(AVG(c.unit_price_cents), 0) AS avg_price_cents
FROM consumptions c
JOIN users u ON u.id = c.user_id
JOIN roles r ON r.id = u.role_id
JOIN beverages b ON b.id = c.beverage_id
WHERE c.created_at >= $1 AND c.created_at < $2
GROUP BY u.id, u.first_name, u.last_name, u.email, r.name, b.name, b.category
ORDER BY u.last_name, u.first_name, b.name`
	rows := make([]order.ReportRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, from, to); err != nil {
		return nil, errors.Wrap(err, "querying report rows")
	}
	return rows, nil
}

func (repo *OrderRepository) QueryUserSummaries(ctx context.Context, from, to time.Time) ([]order.UserSummary, error) {
	q := `
SELECT u.id AS user_id, u.first_name, u.last_name, u.email, r.name AS role_name,
       COALESCE(SUM(c.quantity), 0) AS total_quantity,
       COUNT(*) AS total_consumptions,
       COALESCE(SUM(c.quantity * c.unit_price_cents), 0) AS total_cost_cents
FROM consumptions c
JOIN users u ON u.id = c.user_id
JOIN roles r ON r.id = u.role_id
WHERE c.created_at >= $1 AND c.created_at < $2
GROUP BY u.id, u.first_name, u.last_name, u.email, r.name
ORDER BY total_cost_cents DESC, u.last_name, u.first_name`
	sums := make([]order.UserSummary, 0)
	if err := repo.db.SelectContext(ctx, &sums, q, from, to); err != nil {
		return nil, errors.Wrap(err, "querying user summaries")
	}
	return sums, nil
}

func (repo *OrderRepository) GetReportSummary(ctx context.Context, from, to time.Time) (order.ReportSummary, error) {
	var sum order.ReportSummary
	q := `
SELECT COUNT(DISTINCT user_id) AS total_users,
       COUNT(*) AS total_consumptions,
       COALESCE(SUM(quantity), 0) AS total_quantity,
       COALESCE(SUM(quantity * unit_price_cents), 0) AS total_revenue_cents
FROM consumptions
WHERE created_at >= $1 AND created_at < $2`
	err := repo.db.GetContext(ctx, &sum, q, from, to)
	return sum, errors.Wrap(err, "getting report summary")
}

func (repo *OrderRepository) QueryAvailableMonths(ctx context.Context) ([]order.Month, error) {
	q := `
SELECT DISTINCT EXTRACT(YEAR FROM created_at)::int AS year,
       EXTRACT(MONTH FROM created_at)::int AS month
FROM consumptions
ORDER BY year DESC, month DESC`
	months := make([]order.Month, 0)
	if err := repo.db.SelectContext(ctx, &months, q); err != nil {
		return nil, errors.Wrap(err, "querying available months")
	}
	return months, nil
}

// timeWindow appends from/to conditions on col when the bounds are set.
func timeWindow(q string, args []interface{}, col string, from, to time.Time) (string, []interface{}) {
	if !from.IsZero() {
		args = append(args, from)
		q += ` AND ` + col + ` >= ` + dollar(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		q += ` AND ` + col + ` < ` + dollar(len(args))
	}
	return q, args
}
