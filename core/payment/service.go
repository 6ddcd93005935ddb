package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("payment not found")
	ErrRequestNotFound = errors.New("cash payment request not found")
	ErrMyPOSNotFound   = errors.New("card transaction not found")
	ErrNotPending      = errors.New("payment is not pending")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, pmt Payment) (Payment, error)
		GetPaymentByID(ctx context.Context, id int) (Payment, error)
		// QueryPayments filters by user and/or status; zero values mean "any".
		QueryPayments(ctx context.Context, userID int, status string) ([]Payment, error)
		// QueryStalePayments returns pending payments of a method created
		// before the cutoff.
		QueryStalePayments(ctx context.Context, method string, cutoff time.Time) ([]Payment, error)
		UpdatePayment(ctx context.Context, pmt Payment) (Payment, error)

		CreateLinks(ctx context.Context, links []PaymentConsumption) error
		QueryLinks(ctx context.Context, paymentID int) ([]PaymentConsumption, error)
		DeleteLinks(ctx context.Context, paymentID int) error

		// QueryOpenConsumptions returns a user's consumptions not yet covered
		// by a settled or pending payment, oldest first.
		QueryOpenConsumptions(ctx context.Context, userID int) ([]order.Consumption, error)
		// UnpaidBalance is the user's consumption cost minus settled links.
		UnpaidBalance(ctx context.Context, userID int) (int, error)

		CreateCashRequest(ctx context.Context, req CashRequest) (CashRequest, error)
		GetCashRequestByID(ctx context.Context, id int) (CashRequest, error)
		QueryCashRequests(ctx context.Context, status string) ([]CashRequest, error)
		UpdateCashRequest(ctx context.Context, req CashRequest) (CashRequest, error)

		CreateMyPOSTransaction(ctx context.Context, tx MyPOSTransaction) (MyPOSTransaction, error)
		GetMyPOSTransactionByID(ctx context.Context, id int) (MyPOSTransaction, error)
		UpdateMyPOSTransaction(ctx context.Context, tx MyPOSTransaction) (MyPOSTransaction, error)
	}

	// PayPalGateway is implemented by services/paypal. FindTransaction
	// returns nil when no settled transaction matches the payment (yet).
	PayPalGateway interface {
		Configured() bool
		FindTransaction(ctx context.Context, paymentID int, createdAt time.Time) (*PayPalTransaction, error)
	}

	// UserDirectory resolves payer names for cash book postings.
	UserDirectory interface {
		GetByID(ctx context.Context, id int) (user.User, error)
	}

	// Ledger is the cash book side of settlement.
	Ledger interface {
		LogPayment(ctx context.Context, paymentID, amountCents int, method, userName string, paidAt time.Time, createdBy string) (cashbook.Entry, error)
	}

	Service struct {
		repo   Repository
		users  UserDirectory
		ledger Ledger
		paypal PayPalGateway
		conf   *core.Config
		logger core.Logger

		mu         sync.Mutex
		lastChecks map[int]time.Time // per-payment PayPal poll cooldown
		now        func() time.Time
	}
)

func NewService(repo Repository, users UserDirectory, ledger Ledger, paypal PayPalGateway, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:       repo,
		users:      users,
		ledger:     ledger,
		paypal:     paypal,
		conf:       conf,
		logger:     logger,
		lastChecks: make(map[int]time.Time),
		now:        time.Now,
	}
}

// Create opens a pending payment and reserves the user's open consumptions
// against it, oldest first, until the amount is covered.
func (svc *Service) Create(ctx context.Context, np NewPayment) (Payment, error) {
	if _, err := svc.users.GetByID(ctx, np.UserID); err != nil {
		return Payment{}, err
	}

	now := svc.now().UTC()
	pmt := Payment{
		UserID:      np.UserID,
		AmountCents: np.AmountCents,
		Method:      np.Method,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if np.Notes != "" {
		pmt.Notes = null.StringFrom(np.Notes)
	}
	pmt, err := svc.repo.CreatePayment(ctx, pmt)
	if err != nil {
		return Payment{}, err
	}

	open, err := svc.repo.QueryOpenConsumptions(ctx, np.UserID)
	if err != nil {
		return Payment{}, err
	}
	links := make([]PaymentConsumption, 0, len(open))
	remaining := np.AmountCents
	for _, c := range open {
		if remaining <= 0 {
			break
		}
		covered := c.CostCents()
		if covered > remaining {
			covered = remaining
		}
		links = append(links, PaymentConsumption{
			PaymentID:     pmt.ID,
			ConsumptionID: c.ID,
			AmountCents:   covered,
			CreatedAt:     now,
		})
		remaining -= covered
	}
	if len(links) > 0 {
		if err = svc.repo.CreateLinks(ctx, links); err != nil {
			return Payment{}, err
		}
	}
	return pmt, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Payment, error) {
	return svc.repo.GetPaymentByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, userID int, status string) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, userID, status)
}

func (svc *Service) Links(ctx context.Context, paymentID int) ([]PaymentConsumption, error) {
	return svc.repo.QueryLinks(ctx, paymentID)
}

func (svc *Service) UnpaidBalance(ctx context.Context, userID int) (int, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return 0, err
	}
	return svc.repo.UnpaidBalance(ctx, userID)
}

// Confirm marks a pending payment as paid and posts it to the cash book.
func (svc *Service) Confirm(ctx context.Context, id int, reference, note, createdBy string) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if pmt.Status != StatusPending {
		return Payment{}, ErrNotPending
	}

	now := svc.now().UTC()
	pmt.Status = StatusPaid
	pmt.PaidAt = null.TimeFrom(now)
	pmt.UpdatedAt = now
	if reference != "" {
		pmt.Reference = null.StringFrom(reference)
	}
	if note != "" {
		pmt.Notes = appendNote(pmt.Notes, note)
	}
	if pmt, err = svc.repo.UpdatePayment(ctx, pmt); err != nil {
		return Payment{}, err
	}

	if _, err = svc.ledger.LogPayment(ctx, pmt.ID, pmt.AmountCents, pmt.Method, svc.payerName(ctx, pmt.UserID), now, createdBy); err != nil {
		return Payment{}, errors.Wrap(err, "posting payment to cash book")
	}
	return pmt, nil
}

// Cancel releases a pending payment and its reserved consumptions.
func (svc *Service) Cancel(ctx context.Context, id int, reason string) (Payment, error) {
	pmt, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if pmt.Status != StatusPending {
		return Payment{}, ErrNotPending
	}

	if err = svc.repo.DeleteLinks(ctx, id); err != nil {
		return Payment{}, err
	}
	pmt.Status = StatusCancelled
	pmt.Reference = null.String{}
	pmt.PaidAt = null.Time{}
	pmt.UpdatedAt = svc.now().UTC()
	if reason != "" {
		pmt.Notes = appendNote(pmt.Notes, "[Auto] "+reason)
	}
	return svc.repo.UpdatePayment(ctx, pmt)
}

// RefreshPayPal polls PayPal reporting for a pending payment, respecting the
// per-payment cooldown. Returns true when the payment was confirmed paid.
func (svc *Service) RefreshPayPal(ctx context.Context, id int) (bool, error) {
	if svc.paypal == nil || !svc.paypal.Configured() {
		return false, nil
	}

	pmt, err := svc.repo.GetPaymentByID(ctx, id)
	if err != nil {
		return false, err
	}
	if pmt.Status != StatusPending || pmt.Method != MethodPayPal {
		return false, nil
	}

	now := svc.now().UTC()
	svc.mu.Lock()
	if last, ok := svc.lastChecks[id]; ok && now.Sub(last) < svc.conf.PayPal.PollInterval {
		svc.mu.Unlock()
		return false, nil
	}
	svc.lastChecks[id] = now
	svc.mu.Unlock()

	tx, err := svc.paypal.FindTransaction(ctx, pmt.ID, pmt.CreatedAt)
	if err != nil {
		// reporting hiccups are retried on the next poll
		svc.logger.Warn(fmt.Sprintf("paypal lookup for payment %d: %v", id, err))
		return false, nil
	}
	if tx == nil {
		return false, nil
	}

	noteBits := []string{"PayPal API confirmed"}
	if tx.TransactionID != "" {
		noteBits = append(noteBits, "Txn: "+tx.TransactionID)
	}
	if tx.PayerEmail != "" {
		noteBits = append(noteBits, "Payer: "+tx.PayerEmail)
	}
	if _, err = svc.Confirm(ctx, id, tx.TransactionID, "["+strings.Join(noteBits, " - ")+"]", "PayPal API"); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireStalePayPal cancels pending PayPal payments older than the configured
// TTL and returns how many were cancelled.
func (svc *Service) ExpireStalePayPal(ctx context.Context) (int, error) {
	cutoff := svc.now().UTC().Add(-svc.conf.PayPal.PendingExpiration)
	stale, err := svc.repo.QueryStalePayments(ctx, MethodPayPal, cutoff)
	if err != nil {
		return 0, err
	}
	var n int
	for _, pmt := range stale {
		if _, err = svc.Cancel(ctx, pmt.ID, "expired after "+svc.conf.PayPal.PendingExpiration.String()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// RunPayPalPoller periodically refreshes all pending PayPal payments and
// expires stale ones, until ctx is cancelled.
func (svc *Service) RunPayPalPoller(ctx context.Context) {
	ticker := time.NewTicker(svc.conf.PayPal.BackgroundPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pending, err := svc.repo.QueryPayments(ctx, 0, StatusPending)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("querying pending payments: %v", err), err)
			continue
		}
		for _, pmt := range pending {
			if pmt.Method != MethodPayPal {
				continue
			}
			if _, err = svc.RefreshPayPal(ctx, pmt.ID); err != nil {
				svc.logger.Error(fmt.Sprintf("refreshing payment %d: %v", pmt.ID, err), err)
			}
		}
		if _, err = svc.ExpireStalePayPal(ctx); err != nil {
			svc.logger.Error(fmt.Sprintf("expiring stale payments: %v", err), err)
		}
	}
}

// Cash requests

func (svc *Service) CreateCashRequest(ctx context.Context, nc NewCashRequest) (CashRequest, error) {
	if _, err := svc.users.GetByID(ctx, nc.UserID); err != nil {
		return CashRequest{}, err
	}
	now := svc.now().UTC()
	req := CashRequest{
		UserID:      nc.UserID,
		AmountCents: nc.AmountCents,
		Status:      CashPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if nc.Note != "" {
		req.Note = null.StringFrom(nc.Note)
	}
	return svc.repo.CreateCashRequest(ctx, req)
}

func (svc *Service) QueryCashRequests(ctx context.Context, status string) ([]CashRequest, error) {
	return svc.repo.QueryCashRequests(ctx, status)
}

// CollectCashRequest settles a pending cash request at the counter: the
// request is marked collected and a paid cash payment is booked.
func (svc *Service) CollectCashRequest(ctx context.Context, id int, resolvedBy string) (Payment, error) {
	req, err := svc.repo.GetCashRequestByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if req.Status != CashPending {
		return Payment{}, ErrNotPending
	}

	pmt, err := svc.Create(ctx, NewPayment{
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Method:      MethodCash,
		Notes:       fmt.Sprintf("cash request #%d", req.ID),
	})
	if err != nil {
		return Payment{}, err
	}
	if pmt, err = svc.Confirm(ctx, pmt.ID, "", "", resolvedBy); err != nil {
		return Payment{}, err
	}

	now := svc.now().UTC()
	req.Status = CashCollected
	req.ResolvedAt = null.TimeFrom(now)
	req.UpdatedAt = now
	if resolvedBy != "" {
		req.ResolvedBy = null.StringFrom(resolvedBy)
	}
	if _, err = svc.repo.UpdateCashRequest(ctx, req); err != nil {
		return Payment{}, err
	}
	return pmt, nil
}

func (svc *Service) CancelCashRequest(ctx context.Context, id int, resolvedBy, note string) (CashRequest, error) {
	req, err := svc.repo.GetCashRequestByID(ctx, id)
	if err != nil {
		return CashRequest{}, err
	}
	if req.Status != CashPending {
		return CashRequest{}, ErrNotPending
	}
	now := svc.now().UTC()
	req.Status = CashCancelled
	req.ResolvedAt = null.TimeFrom(now)
	req.UpdatedAt = now
	if resolvedBy != "" {
		req.ResolvedBy = null.StringFrom(resolvedBy)
	}
	if note != "" {
		req.Note = appendNote(req.Note, note)
	}
	return svc.repo.UpdateCashRequest(ctx, req)
}

// myPOS terminal

func (svc *Service) StartMyPOS(ctx context.Context, nt NewMyPOSTransaction) (MyPOSTransaction, error) {
	if _, err := svc.users.GetByID(ctx, nt.UserID); err != nil {
		return MyPOSTransaction{}, err
	}
	tx := MyPOSTransaction{
		UserID:      nt.UserID,
		AmountCents: nt.AmountCents,
		Status:      MyPOSPending,
		CreatedAt:   svc.now().UTC(),
	}
	if nt.DeviceID != "" {
		tx.DeviceID = null.StringFrom(nt.DeviceID)
	}
	return svc.repo.CreateMyPOSTransaction(ctx, tx)
}

// CompleteMyPOS finishes a terminal transaction: a paid card payment is
// booked and linked to it.
func (svc *Service) CompleteMyPOS(ctx context.Context, id int, transactionID string) (MyPOSTransaction, error) {
	tx, err := svc.repo.GetMyPOSTransactionByID(ctx, id)
	if err != nil {
		return MyPOSTransaction{}, err
	}
	if tx.Status != MyPOSPending {
		return MyPOSTransaction{}, ErrNotPending
	}

	pmt, err := svc.Create(ctx, NewPayment{
		UserID:      tx.UserID,
		AmountCents: tx.AmountCents,
		Method:      MethodCard,
	})
	if err != nil {
		return MyPOSTransaction{}, err
	}
	if _, err = svc.Confirm(ctx, pmt.ID, transactionID, "", "myPOS"); err != nil {
		return MyPOSTransaction{}, err
	}

	tx.Status = MyPOSCompleted
	tx.PaymentID = null.IntFrom(pmt.ID)
	tx.CompletedAt = null.TimeFrom(svc.now().UTC())
	if transactionID != "" {
		tx.TransactionID = null.StringFrom(transactionID)
	}
	return svc.repo.UpdateMyPOSTransaction(ctx, tx)
}

func (svc *Service) FailMyPOS(ctx context.Context, id int, status string) (MyPOSTransaction, error) {
	tx, err := svc.repo.GetMyPOSTransactionByID(ctx, id)
	if err != nil {
		return MyPOSTransaction{}, err
	}
	if tx.Status != MyPOSPending {
		return MyPOSTransaction{}, ErrNotPending
	}
	if status != MyPOSCancelled && status != MyPOSFailed {
		return MyPOSTransaction{}, errors.Errorf("invalid terminal status %q", status)
	}
	tx.Status = status
	return svc.repo.UpdateMyPOSTransaction(ctx, tx)
}

func (svc *Service) payerName(ctx context.Context, userID int) string {
	usr, err := svc.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Sprintf("User #%d", userID)
	}
	return usr.FullName()
}

func appendNote(notes null.String, note string) null.String {
	if !notes.Valid || notes.String == "" {
		return null.StringFrom(note)
	}
	return null.StringFrom(notes.String + "\n" + note)
}
