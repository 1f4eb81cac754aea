package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"storefront-service/internal/domain"
)

// tokenSkew is subtracted from the advertised expiry so a token is refreshed
// before the gateway actually stops accepting it.
const tokenSkew = 30 * time.Second

const (
	tokenRetries   = 3
	initialBackoff = 200 * time.Millisecond
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	TokenTimeout   time.Duration
	PushTimeout    time.Duration
}

type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

// Client talks to the Daraja sandbox/production API. The bearer token is
// cached until shortly before expiry; concurrent refreshes collapse into a
// single credentials exchange.
type Client struct {
	cfg        Config
	httpClient *http.Client
	sf         singleflight.Group
	now        func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(cfg Config) *Client {
	if cfg.TokenTimeout == 0 {
		cfg.TokenTimeout = 30 * time.Second
	}
	if cfg.PushTimeout == 0 {
		cfg.PushTimeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		now:        time.Now,
	}
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, true
	}
	return "", false
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// AccessToken returns the cached bearer token, performing a client-credentials
// exchange when it is absent or expiring. Retryable failures are retried a
// bounded number of times with backoff; a rejected exchange is not retried.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(); ok {
		return tok, nil
	}

	v, err, _ := c.sf.Do("token", func() (interface{}, error) {
		// another caller may have refreshed while we queued behind sf
		if tok, ok := c.cachedToken(); ok {
			return tok, nil
		}

		backoff := initialBackoff
		var lastErr error
		for attempt := 1; attempt <= tokenRetries; attempt++ {
			tok, exp, err := c.fetchToken(ctx)
			if err == nil {
				c.mu.Lock()
				c.token = tok
				c.tokenExp = exp
				c.mu.Unlock()
				return tok, nil
			}
			lastErr = err
			if !errors.Is(err, domain.ErrGatewayUnavailable) {
				return nil, err
			}
			log.WithError(err).WithField("attempt", attempt).Warn("daraja: token exchange failed")
			if attempt < tokenRetries {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TokenTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, classifyStatus(resp.StatusCode, "token exchange")
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: decoding token response: %v", domain.ErrGatewayUnavailable, err)
	}
	if body.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty access token", domain.ErrGatewayRejected)
	}

	ttl := 3600 * time.Second
	if secs, err := strconv.Atoi(body.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	return body.AccessToken, c.now().Add(ttl - tokenSkew), nil
}

// Password is base64(shortcode+passkey+timestamp) per the Daraja spec.
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// STKPush dispatches a payment prompt to the payer's phone. The returned
// CheckoutRequestID correlates the eventual asynchronous callback with this
// initiation. A 2xx here only confirms the push was dispatched, not paid.
func (c *Client) STKPush(ctx context.Context, phoneNumber string, amountCents int64, accountReference string) (*PushResult, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	result, status, err := c.push(ctx, token, phoneNumber, amountCents, accountReference)
	if status == http.StatusUnauthorized {
		// cached token went stale server-side; refresh once and retry
		c.invalidateToken()
		token, err = c.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		result, _, err = c.push(ctx, token, phoneNumber, amountCents, accountReference)
	}
	return result, err
}

func (c *Client) push(ctx context.Context, token, phoneNumber string, amountCents int64, accountReference string) (*PushResult, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PushTimeout)
	defer cancel()

	timestamp := c.now().Format("20060102150405")
	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amountCents / 100,
		"PartyA":            phoneNumber,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       phoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  accountReference,
		"TransactionDesc":   "Order Payment",
	}
	body, _ := json.Marshal(payload)

	url := c.cfg.BaseURL + "/mpesa/stkpush/v1/processrequest"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.WithFields(log.Fields{"status": resp.StatusCode, "body": string(raw)}).Warn("daraja: stk push failed")
		return nil, resp.StatusCode, classifyStatus(resp.StatusCode, "stk push")
	}

	var out struct {
		MerchantRequestID string `json:"MerchantRequestID"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		ResponseDesc      string `json:"ResponseDescription"`
		CustomerMessage   string `json:"CustomerMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: decoding push response: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.ResponseCode != "0" {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, out.ResponseDesc)
	}
	if out.CheckoutRequestID == "" {
		return nil, resp.StatusCode, fmt.Errorf("%w: missing CheckoutRequestID", domain.ErrGatewayRejected)
	}

	return &PushResult{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		CustomerMessage:   out.CustomerMessage,
	}, resp.StatusCode, nil
}

func classifyStatus(status int, op string) error {
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrGatewayUnavailable, op, status)
	}
	return fmt.Errorf("%w: %s returned status %d", domain.ErrGatewayRejected, op, status)
}
