package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one HTTP exchange.
	DefaultTimeout = 30 * time.Second
	// DefaultAttempts is the number of tries on network errors.
	DefaultAttempts = 3
	// DefaultAttemptDelay separates two tries.
	DefaultAttemptDelay = 500 * time.Millisecond

	maxBody = 64 << 10
)

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Attempts     int
	AttemptDelay time.Duration
}

// HTTP sends documents with plain HTTP requests.
type HTTP struct {
	base     string
	client   *http.Client
	attempts int
	delay    time.Duration
	log      logrus.FieldLogger
}

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg HTTPConfig, log logrus.FieldLogger) *HTTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	return &HTTP{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.Attempts,
		delay:    cfg.AttemptDelay,
		log:      log.WithField("component", "http"),
	}
}

// Put sends body to path.
func (h *HTTP) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return h.do(ctx, http.MethodPut, path, body)
}

// Get fetches path.
func (h *HTTP) Get(ctx context.Context, path string) (*Response, error) {
	return h.do(ctx, http.MethodGet, path, nil)
}

// do retries network failures. A status answer is final.
func (h *HTTP) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, h.delay); err != nil {
				return nil, err
			}
		}

		resp, err := h.once(ctx, method, path, body)
		if err == nil {
			return resp, nil
		}
		if resp != nil {
			return resp, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		h.log.WithError(err).WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt,
		}).Debug("request failed")
	}
	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, path, h.attempts, lastErr)
}

func (h *HTTP) once(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Close = true
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &Response{Status: res.StatusCode, Body: data}
	if d := res.Header.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			resp.Date = t.UTC()
		}
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return resp, StatusError(res.StatusCode)
	}
	return resp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
