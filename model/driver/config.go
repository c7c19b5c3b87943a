package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
)

const (
	Ollama = "ollama"
	GenAI  = "genai"
	OpenAI = "openai"
)

// Config describes one remote model backend.
type Config struct {
	//ollama, genai or openai (any OpenAI compatible server such as vLLM).
	Driver   string `mapstructure:"driver"`
	Endpoint string `mapstructure:"endpoint"`
	ApiKey   string `mapstructure:"api_key"`
	//Optional. Fixed model names, skip discovery when set.
	Models   []string      `mapstructure:"models"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxRetry uint          `mapstructure:"max_retry"`
}

func NewGenerator(ctx context.Context, cfg Config) (model.Generator, error) {
	switch cfg.Driver {
	case Ollama:
		return NewOllamaAdapter(cfg)
	case GenAI:
		return NewGeminiAdapter(ctx, cfg)
	case OpenAI:
		return NewOpenAIAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown generative driver: %q", cfg.Driver)
	}
}

func NewEmbedder(ctx context.Context, cfg Config) (model.Embedder, error) {
	switch cfg.Driver {
	case Ollama:
		return NewOllamaAdapter(cfg)
	case GenAI:
		return NewGeminiAdapter(ctx, cfg)
	case OpenAI:
		return NewOpenAIAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown embeddings driver: %q", cfg.Driver)
	}
}

// rerank servers speak the Cohere style /v1/rerank API regardless of the driver name.
func NewReranker(cfg Config) (model.Reranker, error) {
	switch cfg.Driver {
	case OpenAI, "cohere":
		return NewRerankAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown rerank driver: %q", cfg.Driver)
	}
}

// Known reports whether name is a driver for kind.
func Known(kind model.Kind, name string) bool {
	switch kind {
	case model.KindGenerative, model.KindEmbeddings:
		return name == Ollama || name == GenAI || name == OpenAI
	case model.KindRerank:
		return name == OpenAI || name == "cohere"
	}
	return false
}
