// internal/gateway/client.go
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ridewallet/internal/domain"
	"ridewallet/internal/util"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrorKind classifies a gateway failure.
type ErrorKind string

const (
	ErrorKindNetwork  ErrorKind = "network"
	ErrorKindHTTP     ErrorKind = "http"
	ErrorKindProtocol ErrorKind = "protocol"
)

// GatewayError is returned for every failed exchange with the gateway.
// errors.Is(err, util.ErrGateway) holds for all of them.
type GatewayError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s: %s error", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == util.ErrGateway }

// Config holds the merchant credentials and endpoints.
type Config struct {
	MerchantID        string
	Secret            string
	InitiateURL       string
	RemoteInitiateURL string
	ReturnURL         string
	ResultURL         string
	AuthEmail         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// ChargeRequest asks the gateway to collect Amount for Reference. With a
// Phone the charge is pushed to the payer's handset, otherwise the payer is
// sent to the gateway's web checkout.
type ChargeRequest struct {
	Reference      string
	Amount         decimal.Decimal
	Phone          string
	Method         string
	Email          string
	AdditionalInfo string
}

// ChargeResponse carries the handles for following up on a charge.
type ChargeResponse struct {
	ExternalReference string
	PollURL           string
	RedirectURL       string
	Instructions      string
}

// StatusResult is the gateway's view of a charge.
type StatusResult struct {
	Status            ExternalStatus
	Reference         string
	ExternalReference string
	Amount            decimal.Decimal
	PollURL           string
}

// Client talks to the mobile-money gateway over its signed form protocol.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Client. Outbound calls are bounded by cfg.Timeout and
// paced by a token bucket of cfg.RequestsPerSecond.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     logger,
	}
}

// VerifyWebhook checks a webhook against the merchant secret.
func (c *Client) VerifyWebhook(p WebhookPayload) bool {
	return VerifyWebhookSignature(p, c.cfg.Secret)
}

// InitiateCharge creates a charge on the gateway.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	const op = "initiate"
	if req.Reference == "" || !req.Amount.IsPositive() {
		return nil, util.InvalidInput("charge needs a reference and a positive amount")
	}

	mobile := strings.TrimSpace(req.Phone) != ""
	values := Values{}
	values.Add("id", c.cfg.MerchantID)
	values.Add("reference", req.Reference)
	values.Add("amount", domain.FormatMoney(req.Amount))
	values.Add("additionalinfo", req.AdditionalInfo)
	values.Add("returnurl", c.cfg.ReturnURL)
	values.Add("resulturl", c.cfg.ResultURL)
	endpoint := c.cfg.InitiateURL
	if mobile {
		method := req.Method
		if method == "" {
			method = "ecocash"
		}
		email := req.Email
		if email == "" {
			email = c.cfg.AuthEmail
		}
		values.Add("authemail", email)
		values.Add("phone", req.Phone)
		values.Add("method", method)
		endpoint = c.cfg.RemoteInitiateURL
	}
	values.Add("status", "Message")
	values.Add(hashField, Sign(values, c.cfg.Secret))

	resp, err := c.post(ctx, op, endpoint, values)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Get("status"), "ok") {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: resp.Get("error")}
	}
	if !Verify(resp, c.cfg.Secret) {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: "response hash mismatch"}
	}

	out := &ChargeResponse{
		ExternalReference: resp.Get("paynowreference"),
		PollURL:           resp.Get("pollurl"),
		RedirectURL:       resp.Get("browserurl"),
		Instructions:      resp.Get("instructions"),
	}
	if out.PollURL == "" {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: "response has no poll url"}
	}
	c.logger.Info("Gateway charge initiated", "reference", req.Reference, "mobile", mobile)
	return out, nil
}

// PollStatus asks the gateway for the current status behind a poll URL.
func (c *Client) PollStatus(ctx context.Context, pollURL string) (*StatusResult, error) {
	const op = "poll"
	if pollURL == "" {
		return nil, util.InvalidInput("poll url is empty")
	}

	resp, err := c.post(ctx, op, pollURL, nil)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(resp.Get("status"), "error") {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: resp.Get("error")}
	}
	if !Verify(resp, c.cfg.Secret) {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: "response hash mismatch"}
	}

	status, err := ParseStatus(resp.Get("status"))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Err: err}
	}
	amount, err := decimal.NewFromString(resp.Get("amount"))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Message: "invalid amount", Err: err}
	}
	return &StatusResult{
		Status:            status,
		Reference:         resp.Get("reference"),
		ExternalReference: resp.Get("paynowreference"),
		Amount:            amount,
		PollURL:           resp.Get("pollurl"),
	}, nil
}

func (c *Client) post(ctx context.Context, op, endpoint string, values Values) (Values, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &GatewayError{Kind: ErrorKindNetwork, Op: op, Message: "rate limiter", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindNetwork, Op: op, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindNetwork, Op: op, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &GatewayError{Kind: ErrorKindHTTP, Op: op, StatusCode: res.StatusCode}
	}

	parsed, err := ParseValues(string(body))
	if err != nil {
		return nil, &GatewayError{Kind: ErrorKindProtocol, Op: op, Err: err}
	}
	return parsed, nil
}
