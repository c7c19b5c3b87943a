package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	_http_default_max_retry = 3
	_http_default_timeout   = 2 * time.Minute
)

// StatusError is a non 2xx answer from a model backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("driver: backend responded %d: %s", e.Code, e.Body)
}

// jsonClient talks JSON over http to OpenAI style servers.
type jsonClient struct {
	hc        *http.Client
	baseURL   string
	apiKey    string
	maxRetry  uint
	retryWait time.Duration
}

func newJSONClient(cfg Config) *jsonClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = _http_default_timeout
	}
	maxRetry := cfg.MaxRetry
	if maxRetry == 0 {
		maxRetry = _http_default_max_retry
	}
	return &jsonClient{
		hc:        &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:    cfg.ApiKey,
		maxRetry:  maxRetry,
		retryWait: 500 * time.Millisecond,
	}
}

// do sends the request and retries transport errors, 429 and 5xx with exponential backoff.
// Caller must close the body of the returned response.
func (c *jsonClient) do(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("driver: encode request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait

	attempt := 0
	op := func() (*http.Response, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
		}

		res, err := c.hc.Do(req)
		if err != nil {
			slog.Debug("driver retry", "endpoint", endpoint, "attempt", attempt, "error", err)
			return nil, err
		}
		if res.StatusCode < 300 {
			return res, nil
		}

		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		res.Body.Close()
		serr := &StatusError{Code: res.StatusCode, Body: string(b)}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			slog.Debug("driver retry", "endpoint", endpoint, "attempt", attempt, "status", res.StatusCode)
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.maxRetry),
	)
}

func (c *jsonClient) postJSON(ctx context.Context, path string, in, out any) error {
	res, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("driver: decode %s response: %w", path, err)
	}
	return nil
}

func (c *jsonClient) getJSON(ctx context.Context, path string, out any) error {
	res, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("driver: decode %s response: %w", path, err)
	}
	return nil
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *jsonClient) listModels(ctx context.Context) ([]string, error) {
	var ml modelList
	if err := c.getJSON(ctx, "/v1/models", &ml); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ml.Data))
	for _, m := range ml.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
