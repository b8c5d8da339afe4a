package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	defaultCallTimeout  = 20 * time.Second
	defaultTotalTimeout = 45 * time.Second
	defaultMaxRetries   = 2
	defaultBackoffBase  = 500 * time.Millisecond
	responseReadLimit   = 64 * 1024
)

// Vendor result codes returned in failed verification payloads.
const (
	vendorCodeInvalidImage   = 1006
	vendorCodeNoQR           = 1007
	vendorCodeInvalidQR      = 1008
	vendorCodeDuplicateSlip  = 1012
	vendorCodeAmountMismatch = 1013
	vendorCodeWrongReceiver  = 1014
)

var errAPIKeyRequired = errors.New("slip verifier api key is required")

// SlipResult is the normalized vendor answer for one slip.
type SlipResult struct {
	Verified        bool
	Reason          enums.PaymentReason
	Amount          decimal.Decimal
	TransactionRef  string
	ReceiverAccount string
}

// SlipClient calls the bank-slip verification API.
type SlipClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	callTimeout  time.Duration
	totalTimeout time.Duration
	maxRetries   uint64
	backoffBase  time.Duration
}

type Option func(*SlipClient)

func WithHTTPClient(client *http.Client) Option {
	return func(c *SlipClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeouts(call, total time.Duration) Option {
	return func(c *SlipClient) {
		if call > 0 {
			c.callTimeout = call
		}
		if total > 0 {
			c.totalTimeout = total
		}
	}
}

func WithRetries(maxRetries uint64, base time.Duration) Option {
	return func(c *SlipClient) {
		c.maxRetries = maxRetries
		if base > 0 {
			c.backoffBase = base
		}
	}
}

func NewSlipClient(baseURL, apiKey string, opts ...Option) (*SlipClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("slip verifier base url is required")
	}
	client := &SlipClient{
		httpClient:   &http.Client{},
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:       strings.TrimSpace(apiKey),
		callTimeout:  defaultCallTimeout,
		totalTimeout: defaultTotalTimeout,
		maxRetries:   defaultMaxRetries,
		backoffBase:  defaultBackoffBase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type slipResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Success  bool            `json:"success"`
		Amount   decimal.Decimal `json:"amount"`
		TransRef string          `json:"transRef"`
		Receiver struct {
			Account struct {
				Value string `json:"value"`
			} `json:"account"`
		} `json:"receiver"`
	} `json:"data"`
}

// VerifySlip submits the slip image. Transient failures are retried with
// exponential backoff inside the total timeout; exhausting the budget yields
// an inconclusive result rather than an error.
func (c *SlipClient) VerifySlip(ctx context.Context, image []byte, expected decimal.Decimal) (SlipResult, error) {
	if c == nil {
		return SlipResult{}, pkgerrors.New(pkgerrors.CodeDependency, "slip verifier not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(c.backoffBase)))

	var result SlipResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := c.call(ctx, image, expected)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return SlipResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, permanent.err, "slip verification rejected request")
		}
		return SlipResult{Reason: enums.PaymentReasonInconclusive}, nil
	}
	return result, nil
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }

func (c *SlipClient) call(ctx context.Context, image []byte, expected decimal.Decimal) (SlipResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "slip")
	if err != nil {
		return SlipResult{}, &permanentError{err: err}
	}
	if _, err := part.Write(image); err != nil {
		return SlipResult{}, &permanentError{err: err}
	}
	if err := writer.WriteField("amount", expected.StringFixed(2)); err != nil {
		return SlipResult{}, &permanentError{err: err}
	}
	if err := writer.WriteField("log", "true"); err != nil {
		return SlipResult{}, &permanentError{err: err}
	}
	if err := writer.Close(); err != nil {
		return SlipResult{}, &permanentError{err: err}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return SlipResult{}, &permanentError{err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SlipResult{}, retry.RetryableError(fmt.Errorf("execute slip request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return SlipResult{}, retry.RetryableError(fmt.Errorf("read slip response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return SlipResult{}, retry.RetryableError(fmt.Errorf("slip verifier status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return SlipResult{}, &permanentError{err: fmt.Errorf("slip verifier status %d", resp.StatusCode)}
	}

	var payload slipResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SlipResult{}, retry.RetryableError(fmt.Errorf("decode slip response: %w", err))
	}
	if payload.Success && payload.Data.Success {
		return SlipResult{
			Verified:        true,
			Reason:          enums.PaymentReasonVerified,
			Amount:          payload.Data.Amount,
			TransactionRef:  payload.Data.TransRef,
			ReceiverAccount: payload.Data.Receiver.Account.Value,
		}, nil
	}
	return SlipResult{
		Reason:         reasonForVendorCode(payload.Code),
		Amount:         payload.Data.Amount,
		TransactionRef: payload.Data.TransRef,
	}, nil
}

func reasonForVendorCode(code int) enums.PaymentReason {
	switch code {
	case vendorCodeInvalidImage:
		return enums.PaymentReasonUnreadable
	case vendorCodeNoQR, vendorCodeInvalidQR:
		return enums.PaymentReasonInvalidQR
	case vendorCodeDuplicateSlip:
		return enums.PaymentReasonDuplicateSlip
	case vendorCodeAmountMismatch:
		return enums.PaymentReasonAmountMismatch
	case vendorCodeWrongReceiver:
		return enums.PaymentReasonWrongReceiver
	default:
		return enums.PaymentReasonUnreadable
	}
}
