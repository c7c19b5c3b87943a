package rca

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/odit-bit/rcaccelerator/auth"
	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/odit-bit/rcaccelerator/tempest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

type mockAuth struct{}

func (mockAuth) Login(ctx context.Context, username, password string) (auth.Token, error) {
	if username == "alice" && password == "wonderland" {
		return auth.Token{Value: testToken, Username: "alice", ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
	}
	return auth.Token{}, auth.ErrInvalidCredentials
}

func (mockAuth) VerifyToken(ctx context.Context, token string) (string, error) {
	if token == testToken {
		return "alice", nil
	}
	return "", auth.ErrInvalidToken
}

func newTestEcho(t *testing.T, an Analyzer, reports ReportSource) *echo.Echo {
	t.Helper()
	e := echo.New()
	RestHandler(newTestAccelerator(t, an, reports), mockAuth{}, e)
	return e
}

func do(e *echo.Echo, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authorized {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRest_Auth(t *testing.T) {
	e := newTestEcho(t, &mockAnalyzer{}, &mockReports{})

	testCases := []struct {
		name       string
		header     string
		wantCode   int
		wantDetail string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header is missing"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Invalid authorization header format. Use 'Bearer {token}'"},
		{"no token", "Bearer", http.StatusUnauthorized, "Invalid authorization header format. Use 'Bearer {token}'"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid token", "Bearer " + testToken, http.StatusOK, ""},
		{"lower case scheme", "bearer " + testToken, http.StatusOK, ""},
		{"tab separator", "Bearer\t" + testToken, http.StatusOK, ""},
		{"extra part", "Bearer " + testToken + " extra", http.StatusUnauthorized, "Invalid authorization header format. Use 'Bearer {token}'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/models", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantDetail != "" {
				assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
				assert.JSONEq(t, `{"detail":"`+tc.wantDetail+`"}`, rec.Body.String())
			}
		})
	}
}

func TestRest_Login(t *testing.T) {
	e := newTestEcho(t, &mockAnalyzer{}, &mockReports{})

	rec := do(e, http.MethodPost, "/login", `{"username":"alice","password":"wonderland"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var res LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, testToken, res.Token)

	rec = do(e, http.MethodPost, "/login", `{"username":"alice","password":"x"}`, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password")
}

func TestRest_Prompt(t *testing.T) {
	testCases := []struct {
		name               string
		requestBody        string
		contentType        string
		expectedStatusCode int
		expectedResponse   string
	}{
		{
			name:               "successful prompt",
			requestBody:        `{"content": "why did the job fail?"}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusOK,
			expectedResponse:   `"response":"mock response"`,
		},
		{
			name:               "bad request - invalid json",
			requestBody:        `{"content": [`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusBadRequest,
			expectedResponse:   "bad json format",
		},
		{
			name:               "bad request - wrong content type",
			requestBody:        `{}`,
			contentType:        echo.MIMETextPlain,
			expectedStatusCode: http.StatusBadRequest,
			expectedResponse:   "expecting json body",
		},
		{
			name:               "empty content",
			requestBody:        `{"content": "  "}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusUnprocessableEntity,
			expectedResponse:   "content: field required",
		},
		{
			name:               "temperature out of range",
			requestBody:        `{"content": "hi", "temperature": 1.5}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusUnprocessableEntity,
			expectedResponse:   "temperature",
		},
		{
			name:               "max tokens out of range",
			requestBody:        `{"content": "hi", "max_tokens": 1}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusUnprocessableEntity,
			expectedResponse:   "max_tokens",
		},
		{
			name:               "unknown model",
			requestBody:        `{"content": "hi", "generative_model_name": "gpt"}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusBadRequest,
			expectedResponse:   "Invalid generative model. Available: ['granite', 'mistral']",
		},
		{
			name:               "unknown profile",
			requestBody:        `{"content": "hi", "profile_name": "Jira"}`,
			contentType:        echo.MIMEApplicationJSON,
			expectedStatusCode: http.StatusBadRequest,
			expectedResponse:   "Invalid profile name.",
		},
	}

	e := newTestEcho(t, &mockAnalyzer{}, &mockReports{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/prompt", strings.NewReader(tc.requestBody))
			req.Header.Set(echo.HeaderContentType, tc.contentType)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+testToken)
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			require.Equal(t, tc.expectedStatusCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.expectedResponse)
		})
	}
}

func TestRest_Prompt_DefaultsAndDebug(t *testing.T) {
	var got chat.Settings
	an := &mockAnalyzer{AnswerFunc: func(ctx context.Context, q chat.Query, s chat.Settings) (*chat.Answer, error) {
		got = s
		return &chat.Answer{Content: "ok", URLs: []string{}}, nil
	}}
	e := newTestEcho(t, an, &mockReports{})

	rec := do(e, http.MethodPost, "/prompt", `{"content":"hi","session_id":"s1","max_tokens":256,"debug":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	// absent fields keep the service defaults
	assert.Equal(t, float32(0.7), got.Temperature)
	assert.Equal(t, 256, got.MaxTokens)
	assert.Equal(t, "granite", got.GenerativeModel)
	assert.Equal(t, "s1", an.queries[0].SessionID)

	var res ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Debug)
	assert.Equal(t, 256, res.Debug.Settings.MaxTokens)
}

func TestRest_Prompt_Stream(t *testing.T) {
	e := newTestEcho(t, &mockAnalyzer{}, &mockReports{})

	rec := do(e, http.MethodPost, "/prompt", `{"content":"hi","stream":true}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	events := []StreamEvent{}
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, "mock", events[0].Delta)
	assert.Equal(t, " response", events[1].Delta)
	assert.True(t, events[2].Done)
	assert.Equal(t, []string{"https://ci/1"}, events[2].URLs)
}

func TestRest_RCAFromTempest(t *testing.T) {
	testCases := []struct {
		name       string
		body       string
		failures   func(ctx context.Context, url string) ([]tempest.Failure, error)
		wantCode   int
		wantDetail string
	}{
		{
			name:     "analysed",
			body:     `{"tempest_report_url":"https://logs/report.html"}`,
			wantCode: http.StatusOK,
		},
		{
			name:       "missing url",
			body:       `{}`,
			wantCode:   http.StatusUnprocessableEntity,
			wantDetail: "tempest_report_url",
		},
		{
			name: "no tracebacks",
			body: `{"tempest_report_url":"https://logs/report.html"}`,
			failures: func(ctx context.Context, url string) ([]tempest.Failure, error) {
				return nil, nil
			},
			wantCode:   http.StatusNotFound,
			wantDetail: "No tracebacks found in the provided Tempest report URL.",
		},
		{
			name: "upstream status",
			body: `{"tempest_report_url":"https://logs/report.html"}`,
			failures: func(ctx context.Context, url string) ([]tempest.Failure, error) {
				return nil, &tempest.StatusError{Code: http.StatusForbidden, URL: url}
			},
			wantCode:   http.StatusForbidden,
			wantDetail: "Error response 403 while requesting 'https://logs/report.html'.",
		},
		{
			name: "unreachable",
			body: `{"tempest_report_url":"https://logs/report.html"}`,
			failures: func(ctx context.Context, url string) ([]tempest.Failure, error) {
				return nil, &tempest.FetchError{URL: url, Err: errors.New("connection refused")}
			},
			wantCode:   http.StatusBadRequest,
			wantDetail: "Error fetching URL: connection refused",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEcho(t, &mockAnalyzer{}, &mockReports{FailuresFunc: tc.failures})

			rec := do(e, http.MethodPost, "/rca-from-tempest", tc.body, true)
			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantDetail != "" {
				assert.Contains(t, rec.Body.String(), tc.wantDetail)
				return
			}
			var items []RCAItem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
			require.Len(t, items, 2)
			assert.Equal(t, "test_boot", items[0].TestName)
			assert.Equal(t, "mock response", items[0].Response)
		})
	}
}

func TestRest_SessionsAndHealth(t *testing.T) {
	an := &mockAnalyzer{}
	e := newTestEcho(t, an, &mockReports{})

	rec := do(e, http.MethodDelete, "/sessions/s1", "", true)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, an.cleared)

	rec = do(e, http.MethodGet, "/healthz", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRest_Models(t *testing.T) {
	e := newTestEcho(t, &mockAnalyzer{}, &mockReports{})

	rec := do(e, http.MethodGet, "/models", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var info ModelsInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, []string{"granite", "mistral"}, info.Generative)
	assert.Equal(t, "CI Logs", info.Profiles[0].Name)
	assert.NotContains(t, rec.Body.String(), "system_prompt")
}

func TestRest_ModelsUnavailable(t *testing.T) {
	profiles, err := profile.Load("")
	require.NoError(t, err)
	// embeddings have neither a driver nor static names
	catalog := model.NewCatalog(nil, nil, nil, model.WithStaticNames(model.KindGenerative, "granite"))
	a, err := NewAccelerator(catalog, profiles, &mockAnalyzer{}, &mockReports{}, chat.DefaultSettings(), 1)
	require.NoError(t, err)

	e := echo.New()
	RestHandler(a, mockAuth{}, e)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/models", ""},
		{http.MethodPost, "/prompt", `{"content":"why?"}`},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rec := do(e, tc.method, tc.path, tc.body, true)
			require.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.JSONEq(t, `{"detail":"Model backend unavailable"}`, rec.Body.String())
		})
	}
}
