package rca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/odit-bit/rcaccelerator/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	calls [][]string
	err   error
}

func (m *mockEmbedder) ListModels(ctx context.Context) ([]string, error) {
	return []string{"bge"}, nil
}

func (m *mockEmbedder) Embed(ctx context.Context, name string, input []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, input)
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func TestIngest(t *testing.T) {
	var b strings.Builder
	for i := range _ingest_batch + 3 {
		fmt.Fprintf(&b, `{"id":"doc-%d","collection":"ci_logs","text":"line %d","url":"https://ci/%d"}`+"\n", i, i, i)
	}
	b.WriteString("\n")

	emb := &mockEmbedder{}
	store := vectordb.NewMemory()
	n, err := Ingest(t.Context(), emb, "bge", store, strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, _ingest_batch+3, n)

	// one full batch then the rest
	require.Len(t, emb.calls, 2)
	assert.Len(t, emb.calls[0], _ingest_batch)
	assert.Len(t, emb.calls[1], 3)

	hits, err := store.Search(t.Context(), "ci_logs", []float32{1, 0}, -1, 100)
	require.NoError(t, err)
	assert.Len(t, hits, _ingest_batch+3)
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		emb   *mockEmbedder
		want  string
	}{
		{"malformed line", "{not json}\n", &mockEmbedder{}, "line 1"},
		{"missing collection", `{"text":"x"}` + "\n", &mockEmbedder{}, "collection and text are required"},
		{"embed failure", `{"collection":"ci_logs","text":"x"}` + "\n", &mockEmbedder{err: errors.New("down")}, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Ingest(t.Context(), tt.emb, "bge", vectordb.NewMemory(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
