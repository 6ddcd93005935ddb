package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurinbuild/kantine/core"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

type fakePayPal struct {
	tokenCalls  int
	searchCalls int
	expiresIn   int
	txns        []map[string]interface{}
}

func (f *fakePayPal) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"expires_in":   f.expiresIn,
		})
	})
	mux.HandleFunc("/v1/reporting/transactions", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls++
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "all", r.URL.Query().Get("fields"))
		assert.NotEmpty(t, r.URL.Query().Get("start_date"))
		json.NewEncoder(w).Encode(map[string]interface{}{"transaction_details": f.txns})
	})
	return mux
}

func txn(invoiceID, customField, status, txID, payer string) map[string]interface{} {
	return map[string]interface{}{
		"transaction_info": map[string]interface{}{
			"transaction_id":     txID,
			"transaction_status": status,
			"invoice_id":         invoiceID,
			"custom_field":       customField,
		},
		"payer_info": map[string]interface{}{"email_address": payer},
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	conf := &core.Config{}
	conf.PayPal.ClientID = "client-id"
	conf.PayPal.ClientSecret = "client-secret"
	conf.PayPal.APIBase = baseURL
	conf.PayPal.ReportingLookback = 4 * time.Hour
	return NewClient(conf, nopLogger{})
}

func TestClientConfigured(t *testing.T) {
	c := newTestClient(t, "http://unused")
	assert.True(t, c.Configured())

	c.conf.PayPal.ClientSecret = ""
	assert.False(t, c.Configured())
}

func TestClientFindTransaction(t *testing.T) {
	ctx := context.Background()
	fake := &fakePayPal{
		expiresIn: 3600,
		txns: []map[string]interface{}{
			txn("payment_9", "", "S", "TX-other", "other@example.com"),
			txn("", "note payment_id:42 end", "S", "TX-42", "mia@example.com"),
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	got, err := c.FindTransaction(ctx, 42, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TX-42", got.TransactionID)
	assert.Equal(t, "mia@example.com", got.PayerEmail)

	// invoice id match
	got, err = c.FindTransaction(ctx, 9, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "TX-other", got.TransactionID)

	// the token is fetched once and reused
	assert.Equal(t, 1, fake.tokenCalls)
	assert.Equal(t, 2, fake.searchCalls)
}

func TestClientFindTransactionPendingAndMissing(t *testing.T) {
	ctx := context.Background()
	fake := &fakePayPal{
		expiresIn: 3600,
		txns: []map[string]interface{}{
			txn("payment_7", "", "P", "TX-7", "mia@example.com"),
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	// pending status is not a match yet
	got, err := c.FindTransaction(ctx, 7, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)

	// no matching transaction at all
	got, err = c.FindTransaction(ctx, 999, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClientTokenRefresh(t *testing.T) {
	ctx := context.Background()
	fake := &fakePayPal{expiresIn: 10} // shorter than the refresh margin
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.FindTransaction(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.tokenCalls)

	// a short-lived token still gets the 30s floor, so the second call
	// within that window reuses it
	_, err = c.FindTransaction(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.tokenCalls)

	// jump past expiry
	c.now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = c.FindTransaction(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.tokenCalls)
}

func TestClientReportingUnavailable(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/reporting/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	got, err := c.FindTransaction(ctx, 1, time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}
