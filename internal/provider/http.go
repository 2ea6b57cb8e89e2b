package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

var (
	errMissingCredentials = errors.New("api key required")
	errMalformed          = errors.New("malformed response")
)

type httpStatusError struct {
	Backend    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	msg := fmt.Sprintf("%s request: http %d", e.Backend, e.StatusCode)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + snippet(body, 300)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// classify maps a backend error onto the shared error kinds.
func classify(err error) ErrorKind {
	if errors.Is(err, errMissingCredentials) {
		return AuthError
	}
	if errors.Is(err, errMalformed) {
		return MalformedResponse
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return AuthError
		case http.StatusTooManyRequests:
			return RateLimited
		case http.StatusNotFound:
			return Unsupported
		}
	}
	return Transport
}

func postJSON(ctx context.Context, client HTTPDoer, backend, endpoint string, headers map[string]string, payload, dest any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s request: encode body: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%s request: new request: %w", backend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", backend, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s request: read body: %w", backend, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &httpStatusError{
			Backend:    backend,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%s request: %w: %v (body=%s)", backend, errMalformed, err, snippet(string(body), 200))
	}
	return nil
}

func malformed(backend, detail string) error {
	return fmt.Errorf("%s request: %w: %s", backend, errMalformed, detail)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func snippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
