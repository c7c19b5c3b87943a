package rca

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/vectordb"
)

const _ingest_batch = 32

// IngestRecord is one line of a corpus file.
type IngestRecord struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Text       string `json:"text"`
	URL        string `json:"url"`
}

// Ingest embeds every JSON line of r with the named embeddings model and upserts the
// result into store. It returns the number of stored documents.
func Ingest(ctx context.Context, embedder model.Embedder, modelName string, store vectordb.Store, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	total := 0
	batch := make([]vectordb.Document, 0, _ingest_batch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		input := make([]string, len(batch))
		for i, d := range batch {
			input[i] = d.Text
		}
		vectors, err := embedder.Embed(ctx, modelName, input)
		if err != nil {
			return fmt.Errorf("ingest: embed: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("ingest: got %d embeddings for %d documents", len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := store.Upsert(ctx, batch...); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		total += len(batch)
		slog.Debug("ingest batch stored", "size", len(batch), "total", total)
		batch = batch[:0]
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec IngestRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return total, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if rec.Collection == "" || strings.TrimSpace(rec.Text) == "" {
			return total, fmt.Errorf("ingest: line %d: collection and text are required", line)
		}
		batch = append(batch, vectordb.Document{
			ID:         rec.ID,
			Collection: rec.Collection,
			Text:       rec.Text,
			URL:        rec.URL,
		})
		if len(batch) == _ingest_batch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, fmt.Errorf("ingest: %w", err)
	}
	return total, flush()
}
