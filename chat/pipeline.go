// Package chat answers a question with retrieval augmented generation: the question is
// embedded, similar snippets are searched in the profile collections, optionally
// reranked, and handed to the generative model together with the conversation history.
package chat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/odit-bit/rcaccelerator/history"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/odit-bit/rcaccelerator/vectordb"
)

const (
	_default_search_top_n    = 10
	_default_embed_max_chars = 8000

	noContext = "No relevant context was found in the knowledge base."
)

var ErrEmptyContent = errors.New("chat: empty content")

type Config struct {
	// candidates fetched per collection before reranking
	SearchTopN    int `mapstructure:"search_top_n"`
	EmbedMaxChars int `mapstructure:"embed_max_chars"`
}

type Query struct {
	Content   string
	SessionID string
}

type Answer struct {
	Content string         `json:"response"`
	URLs    []string       `json:"urls"`
	Hits    []vectordb.Hit `json:"hits,omitempty"`
	Usage   model.Usage    `json:"usage"`
}

type Pipeline struct {
	catalog  *model.Catalog
	store    vectordb.Store
	profiles *profile.Registry
	history  history.Store
	cfg      Config
}

// NewPipeline returns a pipeline. hist may be nil to disable conversation memory.
func NewPipeline(catalog *model.Catalog, store vectordb.Store, profiles *profile.Registry, hist history.Store, cfg Config) *Pipeline {
	if cfg.SearchTopN <= 0 {
		cfg.SearchTopN = _default_search_top_n
	}
	if cfg.EmbedMaxChars <= 0 {
		cfg.EmbedMaxChars = _default_embed_max_chars
	}
	return &Pipeline{
		catalog:  catalog,
		store:    store,
		profiles: profiles,
		history:  hist,
		cfg:      cfg,
	}
}

// Answer runs the whole pipeline and returns the complete answer.
func (p *Pipeline) Answer(ctx context.Context, q Query, s Settings) (*Answer, error) {
	return p.run(ctx, q, s, nil)
}

// Stream is Answer but sends every generated delta to sink as it arrives.
func (p *Pipeline) Stream(ctx context.Context, q Query, s Settings, sink func(delta string) error) (*Answer, error) {
	if sink == nil {
		return nil, fmt.Errorf("chat: nil sink")
	}
	return p.run(ctx, q, s, sink)
}

// ClearHistory forgets the turns of session.
func (p *Pipeline) ClearHistory(ctx context.Context, session string) error {
	if p.history == nil {
		return nil
	}
	return p.history.Clear(ctx, session)
}

func (p *Pipeline) run(ctx context.Context, q Query, s Settings, sink func(string) error) (*Answer, error) {
	if strings.TrimSpace(q.Content) == "" {
		return nil, ErrEmptyContent
	}
	prof, err := p.profiles.Get(s.Profile)
	if err != nil {
		return nil, err
	}

	hits, err := p.Retrieve(ctx, q.Content, prof, s)
	if err != nil {
		return nil, err
	}

	var past []model.Message
	keep := s.KeepHistory && q.SessionID != "" && p.history != nil
	if keep {
		past, err = p.history.Load(ctx, q.SessionID)
		if err != nil {
			slog.Warn("chat history unavailable", "session", q.SessionID, "error", err)
			past = nil
		}
	}

	req := model.CCReq{
		Model:       s.GenerativeModel,
		Messages:    buildMessages(prof, hits, past, q.Content),
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}

	gen := p.catalog.Generator()
	if gen == nil {
		return nil, fmt.Errorf("chat: no generative driver configured")
	}
	var res *model.CCRes
	if sink != nil {
		res, err = gen.ChatStream(ctx, req, sink)
	} else {
		res, err = gen.Chat(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("chat generate: %w", err)
	}

	if keep {
		err := p.history.Append(ctx, q.SessionID,
			model.NewTextMessage(model.RoleUser, q.Content),
			model.NewTextMessage(model.RoleAssistant, res.Text),
		)
		if err != nil {
			slog.Warn("chat history not saved", "session", q.SessionID, "error", err)
		}
	}

	ans := &Answer{
		Content: res.Text,
		URLs:    urls(hits),
		Usage:   res.Usage,
	}
	if s.Debug {
		ans.Hits = hits
	}
	return ans, nil
}

// Retrieve returns the context snippets for content, best first.
func (p *Pipeline) Retrieve(ctx context.Context, content string, prof profile.Profile, s Settings) ([]vectordb.Hit, error) {
	emb := p.catalog.Embedder()
	if emb == nil {
		return nil, fmt.Errorf("chat: no embeddings driver configured")
	}
	text := truncate(content, p.cfg.EmbedMaxChars)

	vecs, err := emb.Embed(ctx, s.EmbeddingsModel, []string{text})
	if err != nil {
		return nil, fmt.Errorf("chat embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("chat embed: expected one vector, got %d", len(vecs))
	}

	best := map[string]vectordb.Hit{}
	for _, coll := range prof.Collections {
		hits, err := p.store.Search(ctx, coll, vecs[0], s.SimilarityThreshold, p.cfg.SearchTopN)
		if err != nil {
			return nil, fmt.Errorf("chat search %s: %w", coll, err)
		}
		for _, h := range hits {
			if prev, ok := best[h.ID]; !ok || h.Score > prev.Score {
				best[h.ID] = h
			}
		}
	}

	hits := make([]vectordb.Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	slices.SortFunc(hits, func(a, b vectordb.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	topN := s.RerankTopN
	if topN <= 0 {
		topN = DefaultSettings().RerankTopN
	}
	if s.EnableRerank && len(hits) > 0 {
		return p.rerank(ctx, text, hits, s.RerankModel, topN)
	}
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func (p *Pipeline) rerank(ctx context.Context, query string, hits []vectordb.Hit, name string, topN int) ([]vectordb.Hit, error) {
	rr := p.catalog.Reranker()
	if rr == nil {
		return nil, fmt.Errorf("chat: no rerank driver configured")
	}

	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = h.Text
	}
	results, err := rr.Rerank(ctx, name, query, docs, topN)
	if err != nil {
		return nil, fmt.Errorf("chat rerank: %w", err)
	}

	out := make([]vectordb.Hit, 0, min(topN, len(results)))
	for _, r := range results {
		if len(out) == topN {
			break
		}
		out = append(out, hits[r.Index])
	}
	return out, nil
}

func buildMessages(prof profile.Profile, hits []vectordb.Hit, past []model.Message, content string) []model.Message {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prof.SystemPrompt))
	b.WriteString("\n\nContext:\n")
	if len(hits) == 0 {
		b.WriteString(noContext)
	}
	for i, h := range hits {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, strings.TrimSpace(h.Text))
		if h.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", h.URL)
		}
	}

	msgs := make([]model.Message, 0, len(past)+2)
	msgs = append(msgs, model.NewTextMessage(model.RoleSystem, strings.TrimRight(b.String(), "\n")))
	msgs = append(msgs, past...)
	msgs = append(msgs, model.NewTextMessage(model.RoleUser, content))
	return msgs
}

func urls(hits []vectordb.Hit) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		if _, ok := seen[h.URL]; ok {
			continue
		}
		seen[h.URL] = struct{}{}
		out = append(out, h.URL)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune. Invalid bytes
// before the cut are kept as they are.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for i := 0; i < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(s[cut]); i++ {
		cut--
	}
	if !utf8.RuneStart(s[cut]) {
		// not a rune boundary within reach, s is invalid here anyway
		cut = n
	}
	return s[:cut]
}
