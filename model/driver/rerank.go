package driver

import (
	"context"
	"fmt"
	"slices"

	"github.com/odit-bit/rcaccelerator/model"
)

const _rerank_path = "/v1/rerank"

var _ model.Reranker = (*RerankAdapter)(nil)

// RerankAdapter calls a Cohere style rerank endpoint.
type RerankAdapter struct {
	c      *jsonClient
	models []string
}

func NewRerankAdapter(cfg Config) (*RerankAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("rerank_adapter endpoint cannot be empty")
	}
	return &RerankAdapter{
		c:      newJSONClient(cfg),
		models: slices.Clone(cfg.Models),
	}, nil
}

func (r *RerankAdapter) ListModels(ctx context.Context) ([]string, error) {
	if len(r.models) > 0 {
		return slices.Clone(r.models), nil
	}
	return r.c.listModels(ctx)
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank implements model.Reranker. Results are ordered best first.
func (r *RerankAdapter) Rerank(ctx context.Context, name, query string, documents []string, topN int) ([]model.RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var out rerankResponse
	in := rerankRequest{Model: name, Query: query, Documents: documents, TopN: topN}
	if err := r.c.postJSON(ctx, _rerank_path, in, &out); err != nil {
		return nil, fmt.Errorf("rerank_adapter: %w", err)
	}

	results := make([]model.RerankResult, 0, len(out.Results))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank_adapter: result index %d out of range", res.Index)
		}
		results = append(results, model.RerankResult{Index: res.Index, Score: res.RelevanceScore})
	}
	slices.SortStableFunc(results, func(a, b model.RerankResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
