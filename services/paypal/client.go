package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/payment"
)

// settledStatuses are the reporting transaction_status codes accepted as a
// completed payment. P and PENDING stay pending and are retried later.
var settledStatuses = map[string]bool{
	"S":         true,
	"SUCCESS":   true,
	"COMPLETED": true,
}

// Client looks up payments via the PayPal Transaction Search API. It
// implements payment.PayPalGateway.
type Client struct {
	conf   *core.Config
	logger core.Logger
	http   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		conf:   conf,
		logger: logger,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

func (c *Client) Configured() bool {
	return c.conf.PayPal.ClientID != "" && c.conf.PayPal.ClientSecret != ""
}

// FindTransaction searches reporting for a settled transaction matching the
// payment, by invoice id "payment_<id>" or a custom field containing
// "payment_id:<id>". Returns nil when nothing settled matches yet.
func (c *Client) FindTransaction(ctx context.Context, paymentID int, createdAt time.Time) (*payment.PayPalTransaction, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	start := createdAt.UTC()
	if start.After(now) {
		start = now
	}
	start = start.Add(-c.conf.PayPal.ReportingLookback)
	end := now.Add(5 * time.Minute)

	q := url.Values{}
	q.Set("start_date", start.Format("2006-01-02T15:04:05Z"))
	q.Set("end_date", end.Format("2006-01-02T15:04:05Z"))
	q.Set("fields", "all")
	q.Set("page_size", "100")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.conf.PayPal.APIBase+"/v1/reporting/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building reporting request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying reporting api")
	}
	defer resp.Body.Close()

	// 422 means the window is outside reporting's availability; treat as
	// "not found yet".
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("reporting api returned %d: %s", resp.StatusCode, body)
	}

	var result struct {
		TransactionDetails []struct {
			TransactionInfo struct {
				TransactionID     string `json:"transaction_id"`
				TransactionStatus string `json:"transaction_status"`
				InvoiceID         string `json:"invoice_id"`
				CustomField       string `json:"custom_field"`
			} `json:"transaction_info"`
			PayerInfo struct {
				EmailAddress string `json:"email_address"`
			} `json:"payer_info"`
		} `json:"transaction_details"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decoding reporting response")
	}

	wantInvoice := fmt.Sprintf("payment_%d", paymentID)
	wantMarker := fmt.Sprintf("payment_id:%d", paymentID)
	for _, td := range result.TransactionDetails {
		info := td.TransactionInfo
		if info.InvoiceID != wantInvoice && !strings.Contains(info.CustomField, wantMarker) {
			continue
		}
		if !settledStatuses[strings.ToUpper(info.TransactionStatus)] {
			c.logger.Debug(fmt.Sprintf("transaction %s for payment %d still %s", info.TransactionID, paymentID, info.TransactionStatus))
			continue
		}
		return &payment.PayPalTransaction{
			TransactionID: info.TransactionID,
			PayerEmail:    td.PayerInfo.EmailAddress,
			Status:        info.TransactionStatus,
		}, nil
	}
	return nil, nil
}

// token returns a cached OAuth access token, refreshing it when it expires
// within the next 15 seconds.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.accessToken != "" && c.tokenExpiry.After(now.Add(15*time.Second)) {
		return c.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.PayPal.APIBase+"/v1/oauth2/token", form)
	if err != nil {
		return "", errors.Wrap(err, "building token request")
	}
	req.SetBasicAuth(c.conf.PayPal.ClientID, c.conf.PayPal.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "requesting access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}
	if tok.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}

	ttl := tok.ExpiresIn - 30
	if ttl < 30 {
		ttl = 30
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiry = now.Add(time.Duration(ttl) * time.Second)
	return c.accessToken, nil
}
