package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// ChatCompletionRequest use for communicating with provider
type CCReq struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// System returns the joined system messages and the rest of the conversation.
// Some providers take the system instruction out of band.
func (req *CCReq) System() (string, []Message) {
	sys := []string{}
	rest := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}

// ChatCompletionResponse present result receive from provider
type CCRes struct {
	ID           string
	Model        string
	Created      time.Time
	Text         string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

// RerankResult points back into the documents slice given to Rerank.
type RerankResult struct {
	Index int
	Score float64
}
