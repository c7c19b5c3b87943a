package rca

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(t.TempDir(), "rca.db")
	cfg.Models.Generative.Models = []string{"granite"}
	cfg.Models.Embeddings.Models = []string{"bge"}
	cfg.Models.Rerank.Models = []string{"bge-reranker"}
	return cfg
}

func TestServer_Wiring(t *testing.T) {
	cfg := newTestConfig(t)
	s, err := NewServer(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	require.NoError(t, s.auth.CreateUser(t.Context(), "alice", "wonderland"))

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"wonderland"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	req = httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+login.Token)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"generative":["granite"]`)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Seed(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.VectorDB.SeedFile = filepath.Join(t.TempDir(), "missing.jsonl")

	_, err := NewServer(t.Context(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServer_BadDriver(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Models.Rerank.Driver = "ollama"

	_, err := NewServer(t.Context(), cfg)
	assert.ErrorContains(t, err, "rerank driver")
}

func TestServer_DefaultProfileMissing(t *testing.T) {
	file := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(file, []byte("- name: Jira\n  collections: [jira]\n"), 0o600))

	cfg := newTestConfig(t)
	cfg.ProfilesFile = file

	_, err := NewServer(t.Context(), cfg)
	require.ErrorIs(t, err, profile.ErrUnknown)
	assert.ErrorContains(t, err, "['Jira']")

	cfg.Defaults.Profile = "Jira"
	s, err := NewServer(t.Context(), cfg)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
