package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/odit-bit/rcaccelerator/model"
	ollama "github.com/ollama/ollama/api"
)

const (
	_ollama_domain = "http://127.0.0.1:11434"
)

//-----------------------------------------------

var (
	_ model.Generator = (*OllamaAPI)(nil)
	_ model.Embedder  = (*OllamaAPI)(nil)
)

type OllamaAPI struct {
	c      *ollama.Client
	models []string
}

func NewOllamaAdapter(cfg Config) (*OllamaAPI, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = _ollama_domain
	}
	oUrl, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ollama_adapter failed parse endpoint: %w", err)
	}

	hc := http.DefaultClient
	if cfg.Timeout > 0 {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OllamaAPI{
		c:      ollama.NewClient(oUrl, hc),
		models: slices.Clone(cfg.Models),
	}, nil
}

// ListModels implements model.Lister with the locally pulled models.
func (oapi *OllamaAPI) ListModels(ctx context.Context) ([]string, error) {
	if len(oapi.models) > 0 {
		return slices.Clone(oapi.models), nil
	}
	list, err := oapi.c.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama_adapter list: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (oapi *OllamaAPI) chatRequest(req model.CCReq, stream bool) *ollama.ChatRequest {
	msgs := make([]ollama.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		msgs = append(msgs, ollama.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return &ollama.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  options,
	}
}

// Chat implements model.Generator.
func (oapi *OllamaAPI) Chat(ctx context.Context, req model.CCReq) (*model.CCRes, error) {
	return oapi.chat(ctx, req, false, nil)
}

// ChatStream implements model.Generator.
func (oapi *OllamaAPI) ChatStream(ctx context.Context, req model.CCReq, fn func(string) error) (*model.CCRes, error) {
	return oapi.chat(ctx, req, true, fn)
}

func (oapi *OllamaAPI) chat(ctx context.Context, req model.CCReq, stream bool, fn func(string) error) (*model.CCRes, error) {
	var resp model.CCRes
	var text strings.Builder

	err := oapi.c.Chat(ctx, oapi.chatRequest(req, stream), func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		if fn != nil && cr.Message.Content != "" {
			if err := fn(cr.Message.Content); err != nil {
				return err
			}
		}
		if cr.Done {
			resp = model.CCRes{
				Model:        cr.Model,
				Created:      cr.CreatedAt,
				FinishReason: cr.DoneReason,
				Usage: model.Usage{
					PromptTokens:     int32(cr.PromptEvalCount),
					CompletionTokens: int32(cr.EvalCount),
					TotalTokens:      int32(cr.PromptEvalCount + cr.EvalCount),
				},
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama_adapter chat: %w", err)
	}

	resp.Text = text.String()
	return &resp, nil
}

// Embed implements model.Embedder.
func (oapi *OllamaAPI) Embed(ctx context.Context, name string, input []string) ([][]float32, error) {
	res, err := oapi.c.Embed(ctx, &ollama.EmbedRequest{
		Model: name,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama_adapter embed: %w", err)
	}
	if len(res.Embeddings) != len(input) {
		return nil, fmt.Errorf("ollama_adapter: got %d embeddings for %d inputs", len(res.Embeddings), len(input))
	}
	return res.Embeddings, nil
}
