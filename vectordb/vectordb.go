// Package vectordb stores embedded documents and answers similarity queries over them.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/odit-bit/rcaccelerator/store"
)

const (
	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
)

var ErrEmptyVector = errors.New("vectordb: empty query vector")

// Document is one retrievable snippet of a collection.
type Document struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Text       string    `json:"text"`
	URL        string    `json:"url"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Store searches by cosine similarity.
type Store interface {
	// Search returns hits of collection with score >= threshold, best first, at most limit.
	Search(ctx context.Context, collection string, vector []float32, threshold float64, limit int) ([]Hit, error)
	Upsert(ctx context.Context, docs ...Document) error
}

type Config struct {
	//pgvector or memory
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	SearchTopN int    `mapstructure:"search_top_n"`
	// jsonl corpus ingested at server start
	SeedFile string `mapstructure:"seed_file"`
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendPGVector:
		db, err := store.Open(store.Config{Driver: store.Postgres, DSN: cfg.DSN})
		if err != nil {
			return nil, fmt.Errorf("vectordb: %w", err)
		}
		return NewPGVector(ctx, db)
	default:
		return nil, fmt.Errorf("vectordb: unknown backend %q", cfg.Backend)
	}
}

func prepare(docs []Document) error {
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if docs[i].Collection == "" {
			return fmt.Errorf("vectordb: document %s has no collection", docs[i].ID)
		}
		if len(docs[i].Embedding) == 0 {
			return fmt.Errorf("vectordb: document %s has no embedding", docs[i].ID)
		}
	}
	return nil
}
