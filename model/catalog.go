package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	defaultListTTL     = 5 * time.Minute
	defaultListTimeout = 30 * time.Second
)

var ErrNoModel = errors.New("no model available")

// Catalog knows which drivers serve which model kind and which model names
// they currently expose. Name lists are cached so request validation does not
// hit the backends every time.
type Catalog struct {
	gen    Generator
	embed  Embedder
	rerank Reranker

	static      map[Kind][]string
	names       *cache.Cache
	listTimeout time.Duration
	sf          singleflight.Group
}

type CatalogOption func(c *Catalog)

// use fixed model names for kind instead of asking the backend.
func WithStaticNames(kind Kind, names ...string) CatalogOption {
	return func(c *Catalog) {
		if len(names) > 0 {
			c.static[kind] = slices.Clone(names)
		}
	}
}

// how long discovered names are trusted.
func WithListTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		if ttl > 0 {
			c.names = cache.New(ttl, 2*ttl)
		}
	}
}

// bound of one backend listing, shared by every waiting caller.
func WithListTimeout(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d > 0 {
			c.listTimeout = d
		}
	}
}

func NewCatalog(gen Generator, embed Embedder, rerank Reranker, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		gen:         gen,
		embed:       embed,
		rerank:      rerank,
		static:      map[Kind][]string{},
		names:       cache.New(defaultListTTL, 2*defaultListTTL),
		listTimeout: defaultListTimeout,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

func (c *Catalog) Generator() Generator { return c.gen }
func (c *Catalog) Embedder() Embedder   { return c.embed }
func (c *Catalog) Reranker() Reranker   { return c.rerank }

func (c *Catalog) lister(kind Kind) (Lister, error) {
	var l Lister
	switch kind {
	case KindGenerative:
		l = c.gen
	case KindEmbeddings:
		l = c.embed
	case KindRerank:
		l = c.rerank
	default:
		return nil, fmt.Errorf("catalog: unknown model kind %q", kind)
	}
	if l == nil {
		return nil, fmt.Errorf("catalog: no %s driver configured", kind)
	}
	return l, nil
}

// Names returns the model names of kind, first one is the default.
// A refresh is shared by concurrent callers and outlives the caller that
// started it, each caller only waits as long as its own ctx allows.
func (c *Catalog) Names(ctx context.Context, kind Kind) ([]string, error) {
	if names, ok := c.static[kind]; ok {
		return slices.Clone(names), nil
	}
	if v, ok := c.names.Get(string(kind)); ok {
		return slices.Clone(v.([]string)), nil
	}

	ch := c.sf.DoChan(string(kind), func() (any, error) {
		l, err := c.lister(kind)
		if err != nil {
			return nil, err
		}
		listCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.listTimeout)
		defer cancel()
		names, err := l.ListModels(listCtx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list %s models: %w", kind, err)
		}
		c.names.SetDefault(string(kind), names)
		slog.Debug("catalog refreshed", "kind", kind, "models", names)
		return names, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

// Default is the first served model of kind.
func (c *Catalog) Default(ctx context.Context, kind Kind) (string, error) {
	names, err := c.Names(ctx, kind)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoModel, kind)
	}
	return names[0], nil
}

// Invalidate drops cached names so the next call asks the backends again.
func (c *Catalog) Invalidate() {
	c.names.Flush()
}
