package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	a, err := NewOpenAIAdapter(Config{Driver: OpenAI, Endpoint: ts.URL, ApiKey: "secret"})
	require.NoError(t, err)
	a.c.retryWait = time.Millisecond
	return a
}

func TestOpenAI_Chat(t *testing.T) {
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, _openai_completions_path, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var in openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "granite", in.Model)
		assert.Equal(t, 128, in.MaxTokens)
		assert.False(t, in.Stream)
		assert.Len(t, in.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","model":"granite","created":1700000000,
			"choices":[{"message":{"role":"assistant","content":"root cause"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`)
	})

	res, err := a.Chat(t.Context(), model.CCReq{
		Model:     "granite",
		MaxTokens: 128,
		Messages: []model.Message{
			model.NewTextMessage(model.RoleSystem, "sys"),
			model.NewTextMessage(model.RoleUser, "why"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "root cause", res.Text)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, int32(12), res.Usage.TotalTokens)
}

func TestOpenAI_ChatStream(t *testing.T) {
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"root", " cause"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	deltas := []string{}
	res, err := a.ChatStream(t.Context(), model.CCReq{Model: "granite"}, func(s string) error {
		deltas = append(deltas, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", " cause"}, deltas)
	assert.Equal(t, "root cause", res.Text)
	assert.Equal(t, "stop", res.FinishReason)
	assert.Equal(t, "c1", res.ID)
}

func TestOpenAI_EmbedAndList(t *testing.T) {
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			fmt.Fprint(w, `{"data":[{"id":"bge-m3"},{"id":"e5"}]}`)
		case _openai_embeddings_path:
			// out of order on purpose
			fmt.Fprint(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	names, err := a.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"bge-m3", "e5"}, names)

	vecs, err := a.Embed(t.Context(), "bge-m3", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAI_Retry(t *testing.T) {
	var calls atomic.Int32

	t.Run("retries server errors", func(t *testing.T) {
		a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"data":[{"id":"m"}]}`)
		})
		names, err := a.ListModels(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []string{"m"}, names)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		calls.Store(0)
		a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "bad model")
		})
		_, err := a.ListModels(t.Context())
		require.Error(t, err)

		var serr *StatusError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, http.StatusBadRequest, serr.Code)
		assert.Equal(t, "bad model", serr.Body)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestOpenAI_StaticModels(t *testing.T) {
	a, err := NewOpenAIAdapter(Config{Endpoint: "http://unused", Models: []string{"fixed"}})
	require.NoError(t, err)
	names, err := a.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed"}, names)

	_, err = NewOpenAIAdapter(Config{})
	require.Error(t, err)
}
