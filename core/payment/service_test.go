package payment_test

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/cashbook"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/payment"
	"github.com/laurinbuild/kantine/core/user"
)

type memRepo struct {
	payments   map[int]payment.Payment
	links      map[int][]payment.PaymentConsumption
	open       map[int][]order.Consumption // per user
	balances   map[int]int
	cashReqs   map[int]payment.CashRequest
	myposTxs   map[int]payment.MyPOSTransaction
	nextID     int
	nextCashID int
	nextTxID   int
}

func newMemRepo() *memRepo {
	return &memRepo{
		payments: make(map[int]payment.Payment),
		links:    make(map[int][]payment.PaymentConsumption),
		open:     make(map[int][]order.Consumption),
		balances: make(map[int]int),
		cashReqs: make(map[int]payment.CashRequest),
		myposTxs: make(map[int]payment.MyPOSTransaction),
	}
}

func (r *memRepo) CreatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	r.nextID++
	pmt.ID = r.nextID
	r.payments[pmt.ID] = pmt
	return pmt, nil
}

func (r *memRepo) GetPaymentByID(ctx context.Context, id int) (payment.Payment, error) {
	pmt, ok := r.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return pmt, nil
}

func (r *memRepo) QueryPayments(ctx context.Context, userID int, status string) ([]payment.Payment, error) {
	var pmts []payment.Payment
	for _, pmt := range r.payments {
		if userID != 0 && pmt.UserID != userID {
			continue
		}
		if status != "" && pmt.Status != status {
			continue
		}
		pmts = append(pmts, pmt)
	}
	sort.Slice(pmts, func(i, j int) bool { return pmts[i].ID < pmts[j].ID })
	return pmts, nil
}

func (r *memRepo) QueryStalePayments(ctx context.Context, method string, cutoff time.Time) ([]payment.Payment, error) {
	var pmts []payment.Payment
	for _, pmt := range r.payments {
		if pmt.Method == method && pmt.Status == payment.StatusPending && pmt.CreatedAt.Before(cutoff) {
			pmts = append(pmts, pmt)
		}
	}
	return pmts, nil
}

func (r *memRepo) UpdatePayment(ctx context.Context, pmt payment.Payment) (payment.Payment, error) {
	if _, ok := r.payments[pmt.ID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	r.payments[pmt.ID] = pmt
	return pmt, nil
}

func (r *memRepo) CreateLinks(ctx context.Context, links []payment.PaymentConsumption) error {
	for _, l := range links {
		r.links[l.PaymentID] = append(r.links[l.PaymentID], l)
	}
	return nil
}

func (r *memRepo) QueryLinks(ctx context.Context, paymentID int) ([]payment.PaymentConsumption, error) {
	return r.links[paymentID], nil
}

func (r *memRepo) DeleteLinks(ctx context.Context, paymentID int) error {
	delete(r.links, paymentID)
	return nil
}

func (r *memRepo) QueryOpenConsumptions(ctx context.Context, userID int) ([]order.Consumption, error) {
	return r.open[userID], nil
}

func (r *memRepo) UnpaidBalance(ctx context.Context, userID int) (int, error) {
	return r.balances[userID], nil
}

func (r *memRepo) CreateCashRequest(ctx context.Context, req payment.CashRequest) (payment.CashRequest, error) {
	r.nextCashID++
	req.ID = r.nextCashID
	r.cashReqs[req.ID] = req
	return req, nil
}

func (r *memRepo) GetCashRequestByID(ctx context.Context, id int) (payment.CashRequest, error) {
	req, ok := r.cashReqs[id]
	if !ok {
		return payment.CashRequest{}, payment.ErrRequestNotFound
	}
	return req, nil
}

func (r *memRepo) QueryCashRequests(ctx context.Context, status string) ([]payment.CashRequest, error) {
	var reqs []payment.CashRequest
	for _, req := range r.cashReqs {
		if status != "" && req.Status != status {
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (r *memRepo) UpdateCashRequest(ctx context.Context, req payment.CashRequest) (payment.CashRequest, error) {
	r.cashReqs[req.ID] = req
	return req, nil
}

func (r *memRepo) CreateMyPOSTransaction(ctx context.Context, tx payment.MyPOSTransaction) (payment.MyPOSTransaction, error) {
	r.nextTxID++
	tx.ID = r.nextTxID
	r.myposTxs[tx.ID] = tx
	return tx, nil
}

func (r *memRepo) GetMyPOSTransactionByID(ctx context.Context, id int) (payment.MyPOSTransaction, error) {
	tx, ok := r.myposTxs[id]
	if !ok {
		return payment.MyPOSTransaction{}, payment.ErrMyPOSNotFound
	}
	return tx, nil
}

func (r *memRepo) UpdateMyPOSTransaction(ctx context.Context, tx payment.MyPOSTransaction) (payment.MyPOSTransaction, error) {
	r.myposTxs[tx.ID] = tx
	return tx, nil
}

type memUsers struct{ users map[int]user.User }

func (d *memUsers) GetByID(ctx context.Context, id int) (user.User, error) {
	usr, ok := d.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

type memLedger struct{ entries []cashbook.Entry }

func (l *memLedger) LogPayment(ctx context.Context, paymentID, amountCents int, method, userName string, paidAt time.Time, createdBy string) (cashbook.Entry, error) {
	entry := cashbook.Entry{
		ID:             len(l.entries) + 1,
		EinnahmenCents: amountCents,
		Bemerkung:      null.StringFrom("payment_id:" + strconv.Itoa(paymentID)),
		CreatedBy:      null.StringFrom(createdBy),
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

type fakeGateway struct {
	configured bool
	tx         *payment.PayPalTransaction
	err        error
	calls      int
}

func (g *fakeGateway) Configured() bool { return g.configured }

func (g *fakeGateway) FindTransaction(ctx context.Context, paymentID int, createdAt time.Time) (*payment.PayPalTransaction, error) {
	g.calls++
	return g.tx, g.err
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func testConf(t *testing.T) *core.Config {
	t.Helper()
	conf := &core.Config{}
	conf.PayPal.PollInterval = 15 * time.Second
	conf.PayPal.PendingExpiration = 72 * time.Hour
	conf.PayPal.BackgroundPollInterval = time.Minute
	conf.Cashbook.AutoCompany = "Kaffeemaschine"
	return conf
}

func newTestService(t *testing.T) (*payment.Service, *memRepo, *memLedger, *fakeGateway) {
	t.Helper()
	repo := newMemRepo()
	users := &memUsers{users: map[int]user.User{
		7: {ID: 7, FirstName: "Mia", LastName: "Keller", RoleID: 1},
	}}
	ledger := &memLedger{}
	gw := &fakeGateway{configured: true}
	svc := payment.NewService(repo, users, ledger, gw, testConf(t), nopLogger{})
	return svc, repo, ledger, gw
}

func consumption(id, userID, qty, unitCents int) order.Consumption {
	return order.Consumption{ID: id, UserID: userID, Quantity: qty, UnitPriceCents: unitCents}
}

func TestServiceCreateReservesConsumptions(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)

	repo.open[7] = []order.Consumption{
		consumption(1, 7, 2, 100), // 200
		consumption(2, 7, 1, 150), // 150
		consumption(3, 7, 1, 300), // 300
	}

	pmt, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 300, Method: payment.MethodPayPal})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, pmt.Status)

	links, err := svc.Links(ctx, pmt.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, 1, links[0].ConsumptionID)
	assert.Equal(t, 200, links[0].AmountCents)
	assert.Equal(t, 2, links[1].ConsumptionID)
	assert.Equal(t, 100, links[1].AmountCents) // partial cover

	_, err = svc.Create(ctx, payment.NewPayment{UserID: 99, AmountCents: 100, Method: payment.MethodCash})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestServiceConfirm(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger, _ := newTestService(t)

	pmt, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 500, Method: payment.MethodCash})
	require.NoError(t, err)

	pmt, err = svc.Confirm(ctx, pmt.ID, "ref-1", "collected at counter", "Anna")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, pmt.Status)
	assert.Equal(t, "ref-1", pmt.Reference.String)
	assert.True(t, pmt.PaidAt.Valid)
	assert.Contains(t, pmt.Notes.String, "collected at counter")
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, 500, ledger.entries[0].EinnahmenCents)

	_, err = svc.Confirm(ctx, pmt.ID, "", "", "")
	assert.ErrorIs(t, err, payment.ErrNotPending)
}

func TestServiceCancelReleasesLinks(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)

	repo.open[7] = []order.Consumption{consumption(1, 7, 1, 250)}
	pmt, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 250, Method: payment.MethodPayPal})
	require.NoError(t, err)

	pmt, err = svc.Cancel(ctx, pmt.ID, "user aborted checkout")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, pmt.Status)
	assert.False(t, pmt.Reference.Valid)
	assert.False(t, pmt.PaidAt.Valid)
	assert.Contains(t, pmt.Notes.String, "[Auto] user aborted checkout")

	links, err := svc.Links(ctx, pmt.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = svc.Cancel(ctx, pmt.ID, "again")
	assert.ErrorIs(t, err, payment.ErrNotPending)
}

func TestServiceRefreshPayPal(t *testing.T) {
	ctx := context.Background()
	svc, _, _, gw := newTestService(t)

	pmt, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 700, Method: payment.MethodPayPal})
	require.NoError(t, err)

	// nothing found yet
	confirmed, err := svc.RefreshPayPal(ctx, pmt.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, 1, gw.calls)

	// cooldown suppresses a second lookup right away
	gw.tx = &payment.PayPalTransaction{TransactionID: "TX42", PayerEmail: "mia@example.com", Status: "S"}
	confirmed, err = svc.RefreshPayPal(ctx, pmt.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, 1, gw.calls)
}

func TestServiceRefreshPayPalConfirms(t *testing.T) {
	ctx := context.Background()
	svc, repo, ledger, gw := newTestService(t)
	gw.tx = &payment.PayPalTransaction{TransactionID: "TX42", PayerEmail: "mia@example.com", Status: "S"}

	pmt, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 700, Method: payment.MethodPayPal})
	require.NoError(t, err)

	confirmed, err := svc.RefreshPayPal(ctx, pmt.ID)
	require.NoError(t, err)
	assert.True(t, confirmed)

	pmt, err = svc.GetByID(ctx, pmt.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, pmt.Status)
	assert.Equal(t, "TX42", pmt.Reference.String)
	assert.Contains(t, pmt.Notes.String, "[PayPal API confirmed - Txn: TX42 - Payer: mia@example.com]")
	assert.Len(t, ledger.entries, 1)

	// paid payments are never polled again
	gw.calls = 0
	confirmed, err = svc.RefreshPayPal(ctx, pmt.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Equal(t, 0, gw.calls)

	// unconfigured gateway is a no-op
	gw.configured = false
	p2, err := repo.CreatePayment(ctx, payment.Payment{UserID: 7, AmountCents: 100, Method: payment.MethodPayPal, Status: payment.StatusPending})
	require.NoError(t, err)
	confirmed, err = svc.RefreshPayPal(ctx, p2.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestServiceExpireStalePayPal(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, _ := newTestService(t)

	old := time.Now().UTC().Add(-80 * time.Hour)
	stale, err := repo.CreatePayment(ctx, payment.Payment{
		UserID: 7, AmountCents: 100, Method: payment.MethodPayPal,
		Status: payment.StatusPending, CreatedAt: old,
	})
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, payment.NewPayment{UserID: 7, AmountCents: 200, Method: payment.MethodPayPal})
	require.NoError(t, err)

	n, err := svc.ExpireStalePayPal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, got.Status)
	assert.Contains(t, got.Notes.String, "[Auto] expired")

	got, err = svc.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status)
}

func TestServiceCashRequestFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger, _ := newTestService(t)

	req, err := svc.CreateCashRequest(ctx, payment.NewCashRequest{UserID: 7, AmountCents: 450, Note: "pays tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, payment.CashPending, req.Status)
	assert.Equal(t, "pays tomorrow", req.Note.String)

	pmt, err := svc.CollectCashRequest(ctx, req.ID, "Anna")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, pmt.Status)
	assert.Equal(t, payment.MethodCash, pmt.Method)
	assert.Equal(t, 450, pmt.AmountCents)
	assert.Len(t, ledger.entries, 1)

	reqs, err := svc.QueryCashRequests(ctx, payment.CashCollected)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "Anna", reqs[0].ResolvedBy.String)
	assert.True(t, reqs[0].ResolvedAt.Valid)

	_, err = svc.CollectCashRequest(ctx, req.ID, "Anna")
	assert.ErrorIs(t, err, payment.ErrNotPending)
}

func TestServiceCashRequestCancel(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	req, err := svc.CreateCashRequest(ctx, payment.NewCashRequest{UserID: 7, AmountCents: 450})
	require.NoError(t, err)

	req, err = svc.CancelCashRequest(ctx, req.ID, "Anna", "user never showed up")
	require.NoError(t, err)
	assert.Equal(t, payment.CashCancelled, req.Status)
	assert.Contains(t, req.Note.String, "never showed up")
}

func TestServiceMyPOSFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, ledger, _ := newTestService(t)

	tx, err := svc.StartMyPOS(ctx, payment.NewMyPOSTransaction{UserID: 7, AmountCents: 320, DeviceID: "terminal-1"})
	require.NoError(t, err)
	assert.Equal(t, payment.MyPOSPending, tx.Status)
	assert.Equal(t, "terminal-1", tx.DeviceID.String)

	tx, err = svc.CompleteMyPOS(ctx, tx.ID, "POS-881")
	require.NoError(t, err)
	assert.Equal(t, payment.MyPOSCompleted, tx.Status)
	assert.True(t, tx.PaymentID.Valid)
	assert.Equal(t, "POS-881", tx.TransactionID.String)
	assert.True(t, tx.CompletedAt.Valid)
	assert.Len(t, ledger.entries, 1)

	pmt, err := svc.GetByID(ctx, tx.PaymentID.Int)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, pmt.Status)
	assert.Equal(t, payment.MethodCard, pmt.Method)

	_, err = svc.CompleteMyPOS(ctx, tx.ID, "POS-882")
	assert.ErrorIs(t, err, payment.ErrNotPending)
}

func TestServiceMyPOSFail(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	tx, err := svc.StartMyPOS(ctx, payment.NewMyPOSTransaction{UserID: 7, AmountCents: 320})
	require.NoError(t, err)

	_, err = svc.FailMyPOS(ctx, tx.ID, "paid")
	assert.Error(t, err)

	tx, err = svc.FailMyPOS(ctx, tx.ID, payment.MyPOSFailed)
	require.NoError(t, err)
	assert.Equal(t, payment.MyPOSFailed, tx.Status)
}
