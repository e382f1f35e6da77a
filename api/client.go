package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// DefaultMaxRetries is how often transport failures are retried.
const DefaultMaxRetries = 3

// ErrForbidden is the sentinel of 403 responses without a more specific one.
var ErrForbidden = errors.New("forbidden")

// StatusError is a non-200 response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the sentinel a handler produced it
// from, so that callers can use errors.Is across the wire.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return interfaces.ErrAuthentication
	case http.StatusForbidden:
		switch {
		case strings.Contains(e.Message, interfaces.ErrEnrollmentDenied.Error()):
			return interfaces.ErrEnrollmentDenied
		case strings.Contains(e.Message, interfaces.ErrTokenBlocked.Error()):
			return interfaces.ErrTokenBlocked
		case strings.Contains(e.Message, interfaces.ErrTicketDenied.Error()),
			strings.Contains(e.Message, interfaces.ErrTicketExpired.Error()):
			return interfaces.ErrTicketDenied
		}
		return ErrForbidden
	case http.StatusNotFound:
		return interfaces.ErrContentNotFound
	case http.StatusServiceUnavailable:
		return interfaces.ErrLocked
	}
	return nil
}

// ReadStatusError builds the StatusError of a non-200 response from its body.
func ReadStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// JSONClient exchanges JSON with a PEP server. Transport failures are
// retried with exponential backoff; responses, including errors, are not.
type JSONClient struct {
	BaseURL    string
	Client     *http.Client
	MaxRetries uint64
}

// Post sends in and decodes the response into out, which may be nil.
func (c *JSONClient) Post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("could not encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Get decodes the response into out.
func (c *JSONClient) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *JSONClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	retries := c.MaxRetries
	if retries == 0 {
		retries = DefaultMaxRetries
	}

	operation := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.BaseURL, "/")+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("could not initialize request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(ReadStatusError(resp))
		}
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("could not read response: %w", err)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("could not parse response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	return backoff.Retry(operation, policy)
}
