package vectordb

import (
	"context"
	"fmt"

	"github.com/odit-bit/rcaccelerator/store"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

var _ Store = (*PGVector)(nil)

// PGVector stores documents in postgres with the pgvector extension.
type PGVector struct {
	db *gorm.DB
}

func NewPGVector(ctx context.Context, db *gorm.DB) (*PGVector, error) {
	p := &PGVector{db: db}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PGVector) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS rca_documents (
			id text PRIMARY KEY,
			collection text NOT NULL,
			text text NOT NULL,
			url text NOT NULL DEFAULT '',
			embedding vector NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS rca_documents_collection_idx ON rca_documents (collection)`,
	}
	for _, s := range stmts {
		if err := p.db.WithContext(ctx).Exec(s).Error; err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

type pgHit struct {
	ID         string  `gorm:"column:id"`
	Collection string  `gorm:"column:collection"`
	Text       string  `gorm:"column:text"`
	URL        string  `gorm:"column:url"`
	Score      float64 `gorm:"column:score"`
}

const _pg_search = `SELECT id, collection, text, url, 1 - (embedding <=> @vec::vector) AS score
FROM rca_documents
WHERE collection = @collection AND 1 - (embedding <=> @vec::vector) >= @threshold
ORDER BY embedding <=> @vec::vector
LIMIT @limit`

func (p *PGVector) Search(ctx context.Context, collection string, vector []float32, threshold float64, limit int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if limit <= 0 {
		limit = 10
	}

	rows := []pgHit{}
	err := p.db.WithContext(ctx).Raw(_pg_search, map[string]any{
		"vec":        pgvector.NewVector(vector),
		"collection": collection,
		"threshold":  threshold,
		"limit":      limit,
	}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{
			Document: Document{ID: r.ID, Collection: r.Collection, Text: r.Text, URL: r.URL},
			Score:    r.Score,
		})
	}
	return hits, nil
}

const _pg_upsert = `INSERT INTO rca_documents (id, collection, text, url, embedding)
VALUES (?, ?, ?, ?, ?::vector)
ON CONFLICT (id) DO UPDATE SET
	collection = EXCLUDED.collection,
	text = EXCLUDED.text,
	url = EXCLUDED.url,
	embedding = EXCLUDED.embedding`

func (p *PGVector) Upsert(ctx context.Context, docs ...Document) error {
	if err := prepare(docs); err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range docs {
			if err := tx.Exec(_pg_upsert, d.ID, d.Collection, d.Text, d.URL, pgvector.NewVector(d.Embedding)).Error; err != nil {
				return fmt.Errorf("pgvector upsert %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

func (p *PGVector) Close() error {
	return store.Close(p.db)
}
