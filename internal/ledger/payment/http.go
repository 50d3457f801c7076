package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	dErrors "provenance/pkg/domain-errors"
)

// HTTPConfig configures the remote authority client.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTPClient talks JSON to a payment authority behind a circuit breaker.
// Only outages (transport errors and 5xx) count as breaker failures; a
// refusal is a normal answer.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid payment authority url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-authority",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &HTTPClient{
		baseURL: base.String(),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// apiResponse is a completed exchange. Refusals travel here rather than as an
// error so they do not trip the breaker.
type apiResponse struct {
	status int
	body   []byte
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *HTTPClient) Transfer(ctx context.Context, t Transfer) (Receipt, error) {
	resp, err := c.do(ctx, http.MethodPost, "/transfers", t)
	if err != nil {
		return Receipt{}, err
	}
	switch {
	case resp.status == http.StatusOK || resp.status == http.StatusCreated:
		var r Receipt
		if err := json.Unmarshal(resp.body, &r); err != nil {
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeOperationFailed, "payment authority returned an unreadable receipt")
		}
		if r.ID == "" {
			return Receipt{}, dErrors.New(dErrors.CodeOperationFailed, "payment authority returned a receipt without id")
		}
		return r, nil
	case resp.status == http.StatusPaymentRequired:
		return Receipt{}, dErrors.New(dErrors.CodeInsufficientPayment, refusal(resp.body, "payment refused: insufficient funds"))
	default:
		return Receipt{}, dErrors.New(dErrors.CodeOperationFailed, refusal(resp.body, fmt.Sprintf("payment refused with status %d", resp.status)))
	}
}

func (c *HTTPClient) Reverse(ctx context.Context, r Receipt) error {
	resp, err := c.do(ctx, http.MethodPost, "/transfers/"+url.PathEscape(r.ID)+"/reverse", nil)
	if err != nil {
		return err
	}
	if resp.status/100 != 2 {
		return dErrors.New(dErrors.CodeOperationFailed, refusal(resp.body, fmt.Sprintf("reversal refused with status %d", resp.status)))
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("payment authority status %d", res.StatusCode)
		}
		return &apiResponse{status: res.StatusCode, body: raw}, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.WarnContext(ctx, "payment authority unavailable", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeOperationFailed, "payment authority unavailable")
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeOperationFailed, "payment authority timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeOperationFailed, "payment authority request failed")
	}
	return result.(*apiResponse), nil
}

func refusal(body []byte, fallback string) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Description != "" {
		return eb.Description
	}
	return fallback
}

// State exposes the breaker state for health reporting.
func (c *HTTPClient) State() string {
	return c.breaker.State().String()
}
