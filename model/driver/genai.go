package driver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/odit-bit/rcaccelerator/model"
	"google.golang.org/genai"
)

var (
	_ model.Generator = (*GeminiAdapter)(nil)
	_ model.Embedder  = (*GeminiAdapter)(nil)
)

type GeminiAdapter struct {
	cli    *genai.Client
	models []string
}

func NewGeminiAdapter(ctx context.Context, cfg Config) (*GeminiAdapter, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("gemini_adapter models cannot be empty")
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.ApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed start gemini_adapter: %w", err)
	}

	return &GeminiAdapter{
		cli:    cli,
		models: slices.Clone(cfg.Models),
	}, nil
}

// ListModels implements model.Lister. Gemini serves far more models than are
// useful here, so the configured list is authoritative.
func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	return slices.Clone(g.models), nil
}

func (g *GeminiAdapter) request(req model.CCReq) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	sys, msgs := req.System()

	contents := []*genai.Content{}
	for _, msg := range msgs {
		content := &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		}
		switch msg.Role {
		case model.RoleAssistant:
			content.Role = genai.RoleModel
		case model.RoleUser:
			content.Role = genai.RoleUser
		default:
			return nil, nil, fmt.Errorf("gemini_adapter unknown message role: %v", msg.Role)
		}
		contents = append(contents, content)
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("gemini_adapter content is empty")
	}

	temperature := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if sys != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(sys)},
		}
	}
	return contents, config, nil
}

// Chat implements model.Generator.
func (g *GeminiAdapter) Chat(ctx context.Context, req model.CCReq) (*model.CCRes, error) {
	contents, config, err := g.request(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.cli.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("genai_adapater failed generating content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("genai_adapter: no candidates in response")
	}

	res := &model.CCRes{
		ID:           resp.ResponseID,
		Model:        resp.ModelVersion,
		Created:      resp.CreateTime,
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		res.Usage = model.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return res, nil
}

// ChatStream implements model.Generator.
func (g *GeminiAdapter) ChatStream(ctx context.Context, req model.CCReq, fn func(string) error) (*model.CCRes, error) {
	contents, config, err := g.request(req)
	if err != nil {
		return nil, err
	}

	res := &model.CCRes{Model: req.Model}
	var text strings.Builder
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return nil, fmt.Errorf("genai_adapater failed streaming content: %w", err)
		}
		res.ID = resp.ResponseID
		res.Created = resp.CreateTime
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
			res.FinishReason = string(resp.Candidates[0].FinishReason)
		}

		delta := resp.Text()
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := fn(delta); err != nil {
			return nil, err
		}
	}

	res.Text = text.String()
	return res, nil
}

// Embed implements model.Embedder.
func (g *GeminiAdapter) Embed(ctx context.Context, name string, input []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(input))
	for _, in := range input {
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(in)},
		})
	}

	resp, err := g.cli.Models.EmbedContent(ctx, name, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai_adapter embed: %w", err)
	}
	if len(resp.Embeddings) != len(input) {
		return nil, fmt.Errorf("genai_adapter: got %d embeddings for %d inputs", len(resp.Embeddings), len(input))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}
