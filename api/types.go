package api

import (
	"fmt"
	"time"

	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/profile"
)

type Settings = chat.Settings

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

// Settings are sent as they are, start from ModelsInfo.Defaults.
type PromptRequest struct {
	Settings
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

// Response
type PromptResponse struct {
	Response string   `json:"response"`
	URLs     []string `json:"urls"`
	Debug    any      `json:"debug,omitempty"`
}

// Request
type RCARequest struct {
	Settings
	TempestReportURL string `json:"tempest_report_url"`
}

// Response
type RCAItem struct {
	TestName string   `json:"test_name"`
	Response string   `json:"response"`
	URLs     []string `json:"urls"`
}

// Response
type ModelsInfo struct {
	Generative []string          `json:"generative"`
	Embeddings []string          `json:"embeddings"`
	Rerank     []string          `json:"rerank"`
	Profiles   []profile.Profile `json:"profiles"`
	Defaults   Settings          `json:"defaults"`
}

type streamEvent struct {
	Delta string   `json:"delta,omitempty"`
	Done  bool     `json:"done,omitempty"`
	URLs  []string `json:"urls,omitempty"`
	Error string   `json:"error,omitempty"`
}

// APIError is a non 2xx answer of the server.
type APIError struct {
	Code   int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d, detail: %s", e.Code, e.Detail)
}
