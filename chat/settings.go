package chat

import (
	"errors"
	"fmt"

	"github.com/odit-bit/rcaccelerator/profile"
)

const (
	MinSimilarity = -1.0
	MaxSimilarity = 1.0
	MinRerankTopN = 1
	MaxRerankTopN = 25
	MaxTokens     = 1024
)

// Settings are the knobs a user may turn for a single question.
type Settings struct {
	GenerativeModel     string  `json:"generative_model_name" mapstructure:"-"`
	EmbeddingsModel     string  `json:"embeddings_model_name" mapstructure:"-"`
	RerankModel         string  `json:"rerank_model_name" mapstructure:"-"`
	Temperature         float32 `json:"temperature" mapstructure:"temperature"`
	MaxTokens           int     `json:"max_tokens" mapstructure:"max_tokens"`
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"search_similarity_threshold"`
	Profile             string  `json:"profile_name" mapstructure:"profile"`
	EnableRerank        bool    `json:"enable_rerank" mapstructure:"enable_rerank"`
	RerankTopN          int     `json:"rerank_top_n" mapstructure:"rerank_top_n"`
	KeepHistory         bool    `json:"keep_history" mapstructure:"keep_history"`
	Debug               bool    `json:"debug" mapstructure:"-"`
	Stream              bool    `json:"stream" mapstructure:"-"`
}

// DefaultSettings are used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Temperature:         0.7,
		MaxTokens:           MaxTokens,
		SimilarityThreshold: 0.8,
		Profile:             profile.CILogs,
		EnableRerank:        true,
		RerankTopN:          5,
		KeepHistory:         true,
	}
}

// RangeError names a setting outside its allowed range.
type RangeError struct {
	Field string
	Msg   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// CheckRanges validates the numeric settings. All violations are reported.
func (s Settings) CheckRanges() error {
	var errs error
	if s.SimilarityThreshold < MinSimilarity || s.SimilarityThreshold > MaxSimilarity {
		errs = errors.Join(errs, &RangeError{"similarity_threshold", "must be between -1 and 1"})
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		errs = errors.Join(errs, &RangeError{"temperature", "must be between 0 and 1"})
	}
	if s.MaxTokens <= 1 || s.MaxTokens > MaxTokens {
		errs = errors.Join(errs, &RangeError{"max_tokens", fmt.Sprintf("must be greater than 1 and at most %d", MaxTokens)})
	}
	if s.RerankTopN < MinRerankTopN || s.RerankTopN > MaxRerankTopN {
		errs = errors.Join(errs, &RangeError{"rerank_top_n", fmt.Sprintf("must be between %d and %d", MinRerankTopN, MaxRerankTopN)})
	}
	return errs
}
