package telebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/odit-bit/rcaccelerator/api"
	tele "gopkg.in/telebot.v4"
)

const (
	_max_message_len = 4096

	msgUnavailable = "service unavailable"
)

// Backend is the rca server as seen by the bot. Implemented by *api.Client.
type Backend interface {
	Prompt(ctx context.Context, in api.PromptRequest) (*api.PromptResponse, error)
	Models(ctx context.Context) (*api.ModelsInfo, error)
	ClearSession(ctx context.Context, session string) error
}

var _ Backend = (*api.Client)(nil)

func Handle(ctx context.Context, bot *tele.Bot, ai Backend, cache *ChatCache) {
	h := NewHandler(ctx, ai, cache)

	bot.Handle("/start", func(c tele.Context) error {
		return send(c, h.Start(c.Chat().ID))
	})
	bot.Handle("/profile", func(c tele.Context) error {
		return send(c, h.Profile(c.Chat().ID, c.Message().Payload))
	})
	bot.Handle("/clear", func(c tele.Context) error {
		return send(c, h.Clear(c.Chat().ID))
	})
	bot.Handle(tele.OnText, func(c tele.Context) error {
		_ = c.Notify(tele.Typing)
		return send(c, h.Text(c.Chat().ID, c.Text()))
	})
}

// send splits long replies to fit telegram limits.
func send(c tele.Context, text string) error {
	for _, part := range split(text, _max_message_len) {
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

type Handler struct {
	ctx   context.Context
	ai    Backend
	cache *ChatCache

	mu   sync.Mutex
	info *api.ModelsInfo
}

func NewHandler(ctx context.Context, ai Backend, cache *ChatCache) *Handler {
	return &Handler{ctx: ctx, ai: ai, cache: cache}
}

func session(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

// models is loaded once, a failed load is retried on the next message.
func (h *Handler) models() (*api.ModelsInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.info != nil {
		return h.info, nil
	}
	info, err := h.ai.Models(h.ctx)
	if err != nil {
		return nil, err
	}
	h.info = info
	return info, nil
}

func (h *Handler) Start(chatID int64) string {
	info, err := h.models()
	if err != nil {
		slog.Error("failed load models", "error", err)
		return msgUnavailable
	}

	current := h.cache.Get(chatID).Profile
	if current == "" {
		current = info.Defaults.Profile
	}

	var b strings.Builder
	b.WriteString("Hi, describe a CI failure or paste a traceback and I will look for its root cause.\n\n")
	fmt.Fprintf(&b, "Current profile: %s\n", current)
	for _, p := range info.Profiles {
		fmt.Fprintf(&b, "\n%s: %s\n", p.Name, p.Description)
		for _, s := range p.Starters {
			fmt.Fprintf(&b, "  - %s\n", s.Label)
		}
	}
	b.WriteString("\nUse /profile <name> to switch and /clear to forget the conversation.")
	return b.String()
}

func (h *Handler) Profile(chatID int64, name string) string {
	info, err := h.models()
	if err != nil {
		slog.Error("failed load models", "error", err)
		return msgUnavailable
	}

	names := make([]string, 0, len(info.Profiles))
	for _, p := range info.Profiles {
		names = append(names, p.Name)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		current := h.cache.Get(chatID).Profile
		if current == "" {
			current = info.Defaults.Profile
		}
		return fmt.Sprintf("Current profile: %s\nAvailable: %s", current, strings.Join(names, ", "))
	}
	if !slices.Contains(names, name) {
		return fmt.Sprintf("Unknown profile %q. Available: %s", name, strings.Join(names, ", "))
	}
	h.cache.SetProfile(chatID, name)
	return fmt.Sprintf("Profile set to %s", name)
}

func (h *Handler) Clear(chatID int64) string {
	if err := h.ai.ClearSession(h.ctx, session(chatID)); err != nil {
		slog.Error("failed clear session", "chat", chatID, "error", err)
		return msgUnavailable
	}
	return "context clear"
}

func (h *Handler) Text(chatID int64, text string) string {
	info, err := h.models()
	if err != nil {
		slog.Error("failed load models", "error", err)
		return msgUnavailable
	}

	req := api.PromptRequest{
		Settings:  info.Defaults,
		Content:   text,
		SessionID: session(chatID),
	}
	if p := h.cache.Get(chatID).Profile; p != "" {
		req.Profile = p
	}

	res, err := h.ai.Prompt(h.ctx, req)
	if err != nil {
		slog.Error("failed generate content", "chat", chatID, "error", err)
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Code < 500 && apiErr.Code != http.StatusUnauthorized {
			return apiErr.Detail
		}
		return msgUnavailable
	}
	return formatAnswer(res)
}

func formatAnswer(res *api.PromptResponse) string {
	if len(res.URLs) == 0 {
		return res.Response
	}
	var b strings.Builder
	b.WriteString(res.Response)
	b.WriteString("\n\nReferences:")
	for _, u := range res.URLs {
		b.WriteString("\n- ")
		b.WriteString(u)
	}
	return b.String()
}

// split cuts text into parts of at most n runes, preferring line breaks.
func split(text string, n int) []string {
	runes := []rune(text)
	if len(runes) <= n {
		return []string{text}
	}
	parts := []string{}
	for len(runes) > n {
		cut := n
		for i := n - 1; i > n/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
