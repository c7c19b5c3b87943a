package vectordb

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory keeps documents in process. Used for tests and small corpora.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document // collection -> id -> doc
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]Document{}}
}

func (m *Memory) Upsert(ctx context.Context, docs ...Document) error {
	if err := prepare(docs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		// an id lives in one collection only
		for _, c := range m.docs {
			delete(c, d.ID)
		}
		c, ok := m.docs[d.Collection]
		if !ok {
			c = map[string]Document{}
			m.docs[d.Collection] = c
		}
		d.Embedding = slices.Clone(d.Embedding)
		c[d.ID] = d
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, collection string, vector []float32, threshold float64, limit int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	m.mu.RLock()
	hits := []Hit{}
	for _, d := range m.docs[collection] {
		score, ok := cosine(vector, d.Embedding)
		if !ok || score < threshold {
			continue
		}
		hits = append(hits, Hit{Document: d, Score: score})
	}
	m.mu.RUnlock()

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
