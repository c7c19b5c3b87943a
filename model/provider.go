package model

import (
	"context"
)

// Kind names the three model families the service talks to.
type Kind string

const (
	KindGenerative Kind = "generative"
	KindEmbeddings Kind = "embeddings"
	KindRerank     Kind = "rerank"
)

var Kinds = []Kind{KindGenerative, KindEmbeddings, KindRerank}

// Lister reports the models a remote backend currently serves.
type Lister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Remote llm backend that serve generative model
type Generator interface {
	Lister
	Chat(ctx context.Context, req CCReq) (*CCRes, error)
	// ChatStream calls fn for every text delta; the returned response carries the full text.
	ChatStream(ctx context.Context, req CCReq, fn func(delta string) error) (*CCRes, error)
}

type Embedder interface {
	Lister
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

type Reranker interface {
	Lister
	Rerank(ctx context.Context, model, query string, documents []string, topN int) ([]RerankResult, error)
}
