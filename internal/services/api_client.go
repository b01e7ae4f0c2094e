package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultAPITimeout = 15 * time.Second

	// HeaderIdempotencyKey lets the upstream dedupe repeated order submissions.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// RequestOpts captures inputs for upstream API calls.
type RequestOpts struct {
	Method         string
	Path           string
	Query          map[string]string
	Body           any
	Token          string
	IdempotencyKey string
}

// APIResponse bundles the HTTP response metadata.
type APIResponse struct {
	Status int
	Body   []byte
	Header http.Header
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// APIClient talks to the storefront REST API. Calls go through a circuit
// breaker that trips on transport failures and 5xx responses.
type APIClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*APIResponse]
}

// NewAPIClient builds a client for baseURL.
func NewAPIClient(baseURL string, timeout time.Duration) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse API base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("API base URL %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	breaker := gobreaker.NewCircuitBreaker[*APIResponse](gobreaker.Settings{
		Name:        "storefront-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("component", "api").Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return &APIClient{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}, nil
}

// Do performs a raw request. Transport failures come back as *NetworkError,
// 5xx responses as *APIError, and an open breaker as a 503 *APIError.
func (c *APIClient) Do(ctx context.Context, opts RequestOpts) (*APIResponse, error) {
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, err
	}

	op := opts.Method + " " + opts.Path
	resp, err := c.breaker.Execute(func() (*APIResponse, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
		}

		out := &APIResponse{Status: r.StatusCode, Body: body, Header: r.Header.Clone()}
		if r.StatusCode >= http.StatusInternalServerError {
			return out, apiErrorFrom(out)
		}
		return out, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &APIError{Status: http.StatusServiceUnavailable, Message: "Service temporarily unavailable"}
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// call performs the request and decodes the data field of the response
// envelope into out. A nil out discards the body.
func (c *APIClient) call(ctx context.Context, opts RequestOpts, out any) error {
	resp, err := c.Do(ctx, opts)
	if err != nil {
		return err
	}
	if resp.Status >= http.StatusBadRequest {
		return apiErrorFrom(resp)
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", opts.Path, err)
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = "Request failed"
		}
		return &APIError{Status: http.StatusBadRequest, Message: msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", opts.Path, err)
	}
	return nil
}

func (c *APIClient) buildRequest(ctx context.Context, opts RequestOpts) (*http.Request, error) {
	if opts.Method == "" {
		return nil, errors.New("request method is required")
	}
	path := strings.Trim(opts.Path, "/")
	if path == "" {
		return nil, errors.New("request path is required")
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if len(opts.Query) > 0 {
		values := url.Values{}
		for k, v := range opts.Query {
			values.Set(k, v)
		}
		u.RawQuery = values.Encode()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.IdempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, opts.IdempotencyKey)
	}
	return req, nil
}
