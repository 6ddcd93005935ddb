package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/payment"
)

const paymentColumns = `id, user_id, amount_cents, payment_method, payment_status, payment_reference,
notes, created_at, updated_at, paid_at`

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (repo *PaymentRepository) CreatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	q := `
INSERT INTO user_payments (user_id, amount_cents, payment_method, payment_status, payment_reference, notes, created_at, updated_at, paid_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		pmt.UserID, pmt.AmountCents, pmt.Method, pmt.Status, pmt.Reference,
		pmt.Notes, pmt.CreatedAt, pmt.UpdatedAt, pmt.PaidAt,
	).Scan(&pmt.ID)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return pmt, nil
}

func (repo *PaymentRepository) GetPaymentByID(ctx context.Context, id int) (payment.Payment, error) {
	var pmt payment.Payment
	err := repo.db.GetContext(ctx, &pmt,
		`SELECT `+paymentColumns+` FROM user_payments WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, errors.Wrap(err, "getting payment")
}

func (repo *PaymentRepository) QueryPayments(ctx context.Context, userID int, status string) ([]payment.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM user_payments WHERE 1=1`
	var args []interface{}
	if userID != 0 {
		args = append(args, userID)
		q += ` AND user_id = ` + dollar(len(args))
	}
	if status != "" {
		args = append(args, status)
		q += ` AND payment_status = ` + dollar(len(args))
	}
	q += ` ORDER BY created_at DESC, id DESC`

	pmts := make([]payment.Payment, 0)
	if err := repo.db.SelectContext(ctx, &pmts, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	return pmts, nil
}

func (repo *PaymentRepository) QueryStalePayments(ctx context.Context, method string, cutoff time.Time) ([]payment.Payment, error) {
	q := `
SELECT ` + paymentColumns + `
FROM user_payments
WHERE payment_method = $1 AND payment_status = 'pending' AND created_at < $2
ORDER BY created_at`
	pmts := make([]payment.Payment, 0)
	if err := repo.db.SelectContext(ctx, &pmts, q, method, cutoff); err != nil {
		return nil, errors.Wrap(err, "querying stale payments")
	}
	return pmts, nil
}

func (repo *PaymentRepository) UpdatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	q := `
UPDATE user_payments
SET payment_status = $1, payment_reference = $2, notes = $3, updated_at = $4, paid_at = $5
WHERE id = $6`
	res, err := repo.db.ExecContext(ctx, q,
		pmt.Status, pmt.Reference, pmt.Notes, pmt.UpdatedAt, pmt.PaidAt, pmt.ID)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, nil
}

func (repo *PaymentRepository) CreateLinks(ctx context.Context, links []payment.PaymentConsumption) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range links {
		_, err = tx.ExecContext(ctx, `
INSERT INTO payment_consumptions (payment_id, consumption_id, amount_cents, created_at)
VALUES ($1, $2, $3, $4)`,
			l.PaymentID, l.ConsumptionID, l.AmountCents, l.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting payment link")
		}
	}
	return errors.Wrap(tx.Commit(), "committing payment links")
}

func (repo *PaymentRepository) QueryLinks(ctx context.Context, paymentID int) ([]payment.PaymentConsumption, error) {
	links := make([]payment.PaymentConsumption, 0)
	err := repo.db.SelectContext(ctx, &links, `
SELECT id, payment_id, consumption_id, amount_cents, created_at
FROM payment_consumptions WHERE payment_id = $1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying payment links")
	}
	return links, nil
}

func (repo *PaymentRepository) DeleteLinks(ctx context.Context, paymentID int) error {
	_, err := repo.db.ExecContext(ctx,
		`DELETE FROM payment_consumptions WHERE payment_id = $1`, paymentID)
	return errors.Wrap(err, "deleting payment links")
}

// QueryOpenConsumptions returns the user's consumptions not yet reserved by a
// pending or paid payment, oldest first.
func (repo *PaymentRepository) QueryOpenConsumptions(ctx context.Context, userID int) ([]order.Consumption, error) {
	q := `
SELECT c.id, c.user_id, c.beverage_id, c.beverage_price_id, c.invoice_id, c.quantity, c.unit_price_cents, c.created_at
FROM consumptions c
WHERE c.user_id = $1
  AND NOT EXISTS (
      SELECT 1
      FROM payment_consumptions pc
      JOIN user_payments p ON p.id = pc.payment_id
      WHERE pc.consumption_id = c.id AND p.payment_status IN ('pending', 'paid')
  )
ORDER BY c.created_at, c.id`
	cs := make([]order.Consumption, 0)
	if err := repo.db.SelectContext(ctx, &cs, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying open consumptions")
	}
	return cs, nil
}

// UnpaidBalance is the user's total consumption cost minus everything
// settled through paid payments.
func (repo *PaymentRepository) UnpaidBalance(ctx context.Context, userID int) (int, error) {
	var balance int
	q := `
SELECT COALESCE((SELECT SUM(quantity * unit_price_cents) FROM consumptions WHERE user_id = $1), 0)
     - COALESCE((
           SELECT SUM(pc.amount_cents)
           FROM payment_consumptions pc
           JOIN user_payments p ON p.id = pc.payment_id
           WHERE p.user_id = $1 AND p.payment_status = 'paid'
       ), 0)`
	err := repo.db.GetContext(ctx, &balance, q, userID)
	return balance, errors.Wrap(err, "computing unpaid balance")
}

// Cash requests

func (repo *PaymentRepository) CreateCashRequest(ctx context.Context, req payment.CashRequest) (payment.CashRequest, error) {
	q := `
INSERT INTO cash_payment_requests (user_id, amount_cents, status, note, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		req.UserID, req.AmountCents, req.Status, req.Note, req.CreatedAt, req.UpdatedAt,
	).Scan(&req.ID)
	if err != nil {
		return payment.CashRequest{}, errors.Wrap(err, "inserting cash request")
	}
	return req, nil
}

func (repo *PaymentRepository) GetCashRequestByID(ctx context.Context, id int) (payment.CashRequest, error) {
	var req payment.CashRequest
	err := repo.db.GetContext(ctx, &req, `
SELECT id, user_id, amount_cents, status, note, resolved_by, resolved_at, created_at, updated_at
FROM cash_payment_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return payment.CashRequest{}, payment.ErrRequestNotFound
	}
	return req, errors.Wrap(err, "getting cash request")
}

func (repo *PaymentRepository) QueryCashRequests(ctx context.Context, status string) ([]payment.CashRequest, error) {
	q := `
SELECT id, user_id, amount_cents, status, note, resolved_by, resolved_at, created_at, updated_at
FROM cash_payment_requests`
	var args []interface{}
	if status != "" {
		args = append(args, status)
		q += ` WHERE status = $1`
	}
	q += ` ORDER BY created_at DESC, id DESC`

	reqs := make([]payment.CashRequest, 0)
	if err := repo.db.SelectContext(ctx, &reqs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying cash requests")
	}
	return reqs, nil
}

func (repo *PaymentRepository) UpdateCashRequest(ctx context.Context, req payment.CashRequest) (payment.CashRequest, error) {
	q := `
UPDATE cash_payment_requests
SET status = $1, note = $2, resolved_by = $3, resolved_at = $4, updated_at = $5
WHERE id = $6`
	res, err := repo.db.ExecContext(ctx, q,
		req.Status, req.Note, req.ResolvedBy, req.ResolvedAt, req.UpdatedAt, req.ID)
	if err != nil {
		return payment.CashRequest{}, errors.Wrap(err, "updating cash request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.CashRequest{}, payment.ErrRequestNotFound
	}
	return req, nil
}

// myPOS terminal transactions

func (repo *PaymentRepository) CreateMyPOSTransaction(ctx context.Context, tx payment.MyPOSTransaction) (payment.MyPOSTransaction, error) {
	q := `
INSERT INTO mypos_transactions (payment_id, user_id, amount_cents, transaction_id, status, device_id, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		tx.PaymentID, tx.UserID, tx.AmountCents, tx.TransactionID, tx.Status,
		tx.DeviceID, tx.CreatedAt, tx.CompletedAt,
	).Scan(&tx.ID)
	if err != nil {
		return payment.MyPOSTransaction{}, errors.Wrap(err, "inserting terminal transaction")
	}
	return tx, nil
}

func (repo *PaymentRepository) GetMyPOSTransactionByID(ctx context.Context, id int) (payment.MyPOSTransaction, error) {
	var tx payment.MyPOSTransaction
	err := repo.db.GetContext(ctx, &tx, `
SELECT id, payment_id, user_id, amount_cents, transaction_id, status, device_id, created_at, completed_at
FROM mypos_transactions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return payment.MyPOSTransaction{}, payment.ErrMyPOSNotFound
	}
	return tx, errors.Wrap(err, "getting terminal transaction")
}

func (repo *PaymentRepository) UpdateMyPOSTransaction(ctx context.Context, tx payment.MyPOSTransaction) (payment.MyPOSTransaction, error) {
	q := `
UPDATE mypos_transactions
SET payment_id = $1, transaction_id = $2, status = $3, completed_at = $4
WHERE id = $5`
	res, err := repo.db.ExecContext(ctx, q,
		tx.PaymentID, tx.TransactionID, tx.Status, tx.CompletedAt, tx.ID)
	if err != nil {
		return payment.MyPOSTransaction{}, errors.Wrap(err, "updating terminal transaction")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payment.MyPOSTransaction{}, payment.ErrMyPOSNotFound
	}
	return tx, nil
}
