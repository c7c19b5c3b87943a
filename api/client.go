// Package api is the Go client of the rca server.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	default_address = "http://127.0.0.1:8000"
)

type Client struct {
	client   *http.Client
	Endpoint string

	mu       sync.RWMutex
	key      string
	username string
	password string
}

func NewClient(endpoint, key string) *Client {
	if endpoint == "" {
		endpoint = default_address
	}
	return &Client{
		client:   http.DefaultClient,
		Endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
	}
}

// WithTimeout bounds every request of the client, zero means no limit.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.client = &http.Client{Timeout: d}
	return c
}

// SetToken replaces the bearer token, used after Login.
func (c *Client) SetToken(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

func (c *Client) credentials() (string, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username, c.password, c.username != ""
}

func (c *Client) newRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("client failed create request: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.token(); key != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", key))
	}
	return req, nil
}

// call sends one request. When the token is refused and the client logged in
// with credentials, it logs in again and retries once.
func (c *Client) call(ctx context.Context, method, path string, in any, accept string) (*http.Response, error) {
	send := func() (*http.Response, error) {
		req, err := c.newRequest(ctx, method, path, in)
		if err != nil {
			return nil, err
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return c.send(req)
	}

	resp, err := send()
	var apiErr *APIError
	if err == nil || path == "/login" || !errors.As(err, &apiErr) || apiErr.Code != http.StatusUnauthorized {
		return resp, err
	}
	username, password, ok := c.credentials()
	if !ok {
		return nil, err
	}
	if _, lerr := c.Login(ctx, username, password); lerr != nil {
		return nil, fmt.Errorf("client failed login again: %w", lerr)
	}
	return send()
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(b))
	}
	return &APIError{Code: resp.StatusCode, Detail: body.Detail}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.call(ctx, method, path, in, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login exchanges credentials for a token. The token and the credentials are
// kept, an expired token is renewed with them.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", LoginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.key = out.Token
	c.username, c.password = username, password
	c.mu.Unlock()
	return &out, nil
}

func (c *Client) Prompt(ctx context.Context, in PromptRequest) (*PromptResponse, error) {
	in.Stream = false
	var out PromptResponse
	if err := c.do(ctx, http.MethodPost, "/prompt", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PromptStream calls fn with every delta and returns the urls of the final event.
func (c *Client) PromptStream(ctx context.Context, in PromptRequest, fn func(delta string) error) ([]string, error) {
	in.Stream = true
	resp, err := c.call(ctx, http.MethodPost, "/prompt", in, "text/event-stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("client failed decode event: %w", err)
		}
		switch {
		case ev.Error != "":
			return nil, &APIError{Code: resp.StatusCode, Detail: ev.Error}
		case ev.Done:
			return ev.URLs, nil
		case ev.Delta != "":
			if err := fn(ev.Delta); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("client: stream ended before done event")
}

func (c *Client) RCA(ctx context.Context, in RCARequest) ([]RCAItem, error) {
	var out []RCAItem
	if err := c.do(ctx, http.MethodPost, "/rca-from-tempest", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Models(ctx context.Context) (*ModelsInfo, error) {
	var out ModelsInfo
	if err := c.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearSession(ctx context.Context, session string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(session), nil, nil)
}
