package rca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/odit-bit/rcaccelerator/auth"
	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/tempest"
	"github.com/odit-bit/rcaccelerator/vectordb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	detailNoTracebacks = "No tracebacks found in the provided Tempest report URL."
	detailInternal     = "Internal server error"
	detailUnavailable  = "Model backend unavailable"
)

// Authenticator issues and checks bearer tokens. Implemented by *auth.Service.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (auth.Token, error)
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Request
type ChatRequest struct {
	chat.Settings
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

// Response
type ChatResponse struct {
	Response string     `json:"response"`
	URLs     []string   `json:"urls"`
	Debug    *DebugInfo `json:"debug,omitempty"`
}

type DebugInfo struct {
	Settings chat.Settings  `json:"settings"`
	Hits     []vectordb.Hit `json:"hits"`
}

// streamed as server sent events, deltas first then one final event
type StreamEvent struct {
	Delta string   `json:"delta,omitempty"`
	Done  bool     `json:"done,omitempty"`
	URLs  []string `json:"urls,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Request
type RCARequest struct {
	chat.Settings
	TempestReportURL string `json:"tempest_report_url"`
}

func (cr *ChatRequest) validate() error {
	if strings.TrimSpace(cr.Content) == "" {
		return errors.New("content: field required")
	}
	return cr.Settings.CheckRanges()
}

func (rr *RCARequest) validate() error {
	var errs error
	u, err := url.Parse(rr.TempestReportURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = errors.New("tempest_report_url: invalid or missing URL scheme")
	}
	return errors.Join(errs, rr.Settings.CheckRanges())
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, echo.Map{"detail": msg})
}

// errorResponse maps service errors to their HTTP answer.
func errorResponse(c echo.Context, err error) error {
	var verr *ValidationError
	var ferr *tempest.FetchError
	var serr *tempest.StatusError
	switch {
	case errors.As(err, &verr):
		return detail(c, http.StatusBadRequest, verr.Detail)
	case errors.As(err, &ferr):
		return detail(c, http.StatusBadRequest, ferr.Error())
	case errors.As(err, &serr):
		return detail(c, serr.Code, serr.Error())
	case errors.Is(err, ErrNoTracebacks):
		return detail(c, http.StatusNotFound, detailNoTracebacks)
	case errors.Is(err, ErrModelsUnavailable):
		slog.Error("model backend", "path", c.Path(), "error", err)
		return detail(c, http.StatusServiceUnavailable, detailUnavailable)
	case errors.Is(err, context.Canceled):
		return nil
	default:
		slog.Error("request failed", "path", c.Path(), "error", err)
		return detail(c, http.StatusInternalServerError, detailInternal)
	}
}

// bind decodes a json body into v, answering the client on failure.
func bind(c echo.Context, v any) (bool, error) {
	if ok := IsJsonContentType(c.Request()); !ok {
		return false, detail(c, http.StatusBadRequest, "expecting json body")
	}
	if err := c.Bind(v); err != nil {
		slog.Debug("failed binding", "error", err)
		return false, detail(c, http.StatusBadRequest, "bad json format")
	}
	return true, nil
}

func RestHandler(a *Accelerator, authn Authenticator, e *echo.Echo) {
	if a == nil || authn == nil || e == nil {
		panic("got nil parameter")
	}

	meter := otel.Meter("rca.rest")
	requestCounter, err := meter.Int64Counter(
		"rca.http.request_total",
		metric.WithDescription("total number of HTTP request"),
	)
	if err != nil {
		panic(err)
	}

	// otel middleware
	e.Use(otelecho.Middleware("rca-server"))

	//custom middleware to counter request
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			requestCounter.Add(c.Request().Context(), 1)
			return err
		}
	})

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	e.POST("/login", func(c echo.Context) error {
		var input LoginRequest
		if ok, err := bind(c, &input); !ok {
			return err
		}
		tok, err := authn.Login(c.Request().Context(), input.Username, input.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return detail(c, http.StatusUnauthorized, "Invalid username or password")
		}
		if err != nil {
			return errorResponse(c, err)
		}
		slog.Info("user logged in", "user", input.Username)
		return c.JSON(http.StatusOK, LoginResponse{Token: tok.Value, ExpiresAt: tok.ExpiresAt})
	})

	g := e.Group("", RequireToken(authn))

	g.POST("/prompt", func(c echo.Context) error {
		input := ChatRequest{Settings: a.Defaults()}
		if ok, err := bind(c, &input); !ok {
			return err
		}
		if err := input.validate(); err != nil {
			return detail(c, http.StatusUnprocessableEntity, err.Error())
		}

		ctx := c.Request().Context()
		if err := a.ValidateSettings(ctx, &input.Settings); err != nil {
			return errorResponse(c, err)
		}

		slog.Debug("prompt", "user", UserFrom(c), "profile", input.Profile, "stream", input.Stream)
		q := chat.Query{Content: input.Content, SessionID: input.SessionID}
		if input.Stream {
			return streamPrompt(c, a, q, input.Settings)
		}

		ans, err := a.Prompt(ctx, q, input.Settings)
		if err != nil {
			return errorResponse(c, err)
		}
		res := ChatResponse{Response: ans.Content, URLs: ans.URLs}
		if input.Debug {
			res.Debug = &DebugInfo{Settings: input.Settings, Hits: ans.Hits}
		}
		return c.JSON(http.StatusOK, res)
	})

	g.POST("/rca-from-tempest", func(c echo.Context) error {
		input := RCARequest{Settings: a.Defaults()}
		if ok, err := bind(c, &input); !ok {
			return err
		}
		if err := input.validate(); err != nil {
			return detail(c, http.StatusUnprocessableEntity, err.Error())
		}

		ctx := c.Request().Context()
		if err := a.ValidateSettings(ctx, &input.Settings); err != nil {
			return errorResponse(c, err)
		}

		items, err := a.RCAFromTempest(ctx, input.TempestReportURL, input.Settings)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, items)
	})

	g.GET("/models", func(c echo.Context) error {
		info, err := a.Models(c.Request().Context())
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, info)
	})

	g.DELETE("/sessions/:id", func(c echo.Context) error {
		if err := a.ClearSession(c.Request().Context(), c.Param("id")); err != nil {
			return errorResponse(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func streamPrompt(c echo.Context, a *Accelerator, q chat.Query, s chat.Settings) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	send := func(ev StreamEvent) error {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", b); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	ans, err := a.PromptStream(c.Request().Context(), q, s, func(delta string) error {
		return send(StreamEvent{Delta: delta})
	})
	if err != nil {
		slog.Error("stream failed", "error", err)
		// headers are gone, report in band
		return send(StreamEvent{Error: detailInternal})
	}
	return send(StreamEvent{Done: true, URLs: ans.URLs})
}

func IsJsonContentType(req *http.Request) bool {
	ct := req.Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationJSON)
}
