package driver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/odit-bit/rcaccelerator/model"
)

const (
	_openai_completions_path = "/v1/chat/completions"
	_openai_embeddings_path  = "/v1/embeddings"
)

var (
	_ model.Generator = (*OpenAIAdapter)(nil)
	_ model.Embedder  = (*OpenAIAdapter)(nil)
)

// wrap OpenAI compatible api (vLLM, TGI, llama.cpp server...)
type OpenAIAdapter struct {
	c      *jsonClient
	models []string
}

func NewOpenAIAdapter(cfg Config) (*OpenAIAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("openai_adapter endpoint cannot be empty")
	}
	return &OpenAIAdapter{
		c:      newJSONClient(cfg),
		models: slices.Clone(cfg.Models),
	}, nil
}

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	if len(o.models) > 0 {
		return slices.Clone(o.models), nil
	}
	return o.c.listModels(ctx)
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *model.Usage `json:"usage"`
}

func toRequest(req model.CCReq, stream bool) openaiRequest {
	return openaiRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// Chat implements model.Generator.
func (o *OpenAIAdapter) Chat(ctx context.Context, req model.CCReq) (*model.CCRes, error) {
	var out openaiResponse
	if err := o.c.postJSON(ctx, _openai_completions_path, toRequest(req, false), &out); err != nil {
		return nil, fmt.Errorf("openai_adapter: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai_adapter: empty choices in response")
	}

	res := &model.CCRes{
		ID:           out.ID,
		Model:        out.Model,
		Created:      time.Unix(out.Created, 0),
		Text:         out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
	}
	if out.Usage != nil {
		res.Usage = *out.Usage
	}
	return res, nil
}

// ChatStream implements model.Generator, reading server sent events.
func (o *OpenAIAdapter) ChatStream(ctx context.Context, req model.CCReq, fn func(string) error) (*model.CCRes, error) {
	resp, err := o.c.do(ctx, http.MethodPost, _openai_completions_path, toRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("openai_adapter: %w", err)
	}
	defer resp.Body.Close()

	res := &model.CCRes{Model: req.Model, Created: time.Now()}
	var text strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if string(data) == "[DONE]" {
			break
		}

		var chunk openaiResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("openai_adapter: decode stream chunk: %w", err)
		}
		if chunk.ID != "" {
			res.ID = chunk.ID
		}
		if chunk.Usage != nil {
			res.Usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			res.FinishReason = choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		text.WriteString(choice.Delta.Content)
		if err := fn(choice.Delta.Content); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("openai_adapter: read stream: %w", err)
	}

	res.Text = text.String()
	return res, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed implements model.Embedder.
func (o *OpenAIAdapter) Embed(ctx context.Context, name string, input []string) ([][]float32, error) {
	var out embeddingResponse
	if err := o.c.postJSON(ctx, _openai_embeddings_path, embeddingRequest{Model: name, Input: input}, &out); err != nil {
		return nil, fmt.Errorf("openai_adapter: %w", err)
	}
	if len(out.Data) != len(input) {
		return nil, fmt.Errorf("openai_adapter: got %d embeddings for %d inputs", len(out.Data), len(input))
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
