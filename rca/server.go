package rca

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/odit-bit/rcaccelerator/auth"
	"github.com/odit-bit/rcaccelerator/chat"
	"github.com/odit-bit/rcaccelerator/history"
	"github.com/odit-bit/rcaccelerator/model"
	"github.com/odit-bit/rcaccelerator/model/driver"
	"github.com/odit-bit/rcaccelerator/profile"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/odit-bit/rcaccelerator/store"
	"github.com/odit-bit/rcaccelerator/tempest"
	"github.com/odit-bit/rcaccelerator/vectordb"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const (
	ServiceName = "rcaccelerator"

	_purge_interval   = time.Hour
	_shutdown_timeout = 10 * time.Second
)

// SetupLogging sets the default slog logger from the server config.
func SetupLogging(cfg config.ServerConfig) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// OpenCatalog builds the three model drivers of cfg.
func OpenCatalog(ctx context.Context, cfg config.ModelsConfig) (*model.Catalog, error) {
	gen, err := driver.NewGenerator(ctx, cfg.Generative)
	if err != nil {
		return nil, fmt.Errorf("generative driver: %w", err)
	}
	embed, err := driver.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("embeddings driver: %w", err)
	}
	rerank, err := driver.NewReranker(cfg.Rerank)
	if err != nil {
		return nil, fmt.Errorf("rerank driver: %w", err)
	}
	return model.NewCatalog(gen, embed, rerank,
		model.WithListTTL(cfg.ListCacheTTL),
		model.WithListTimeout(cfg.ListTimeout),
		model.WithStaticNames(model.KindGenerative, cfg.Generative.Models...),
		model.WithStaticNames(model.KindEmbeddings, cfg.Embeddings.Models...),
		model.WithStaticNames(model.KindRerank, cfg.Rerank.Models...),
	), nil
}

// OpenAuth opens the user database.
func OpenAuth(cfg *config.Config) (*auth.Service, *gorm.DB, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc, err := auth.New(db, cfg.Auth)
	if err != nil {
		return nil, nil, errors.Join(err, store.Close(db))
	}
	return svc, db, nil
}

// IngestFile embeds a jsonl corpus with the default embeddings model.
func IngestFile(ctx context.Context, catalog *model.Catalog, vs vectordb.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	defer f.Close()

	name, err := catalog.Default(ctx, model.KindEmbeddings)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	return Ingest(ctx, catalog.Embedder(), name, vs, f)
}

type Server struct {
	cfg   *config.Config
	e     *echo.Echo
	auth  *auth.Service
	accel *Accelerator

	closers []func() error
}

// NewServer wires every component of the service from cfg.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	authSvc, db, err := OpenAuth(cfg)
	if err != nil {
		return nil, err
	}
	s.auth = authSvc
	s.closers = append(s.closers, func() error { return store.Close(db) })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = store.Ping(pingCtx, db)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	catalog, err := OpenCatalog(ctx, cfg.Models)
	if err != nil {
		return nil, err
	}

	vs, err := vectordb.Open(ctx, cfg.VectorDB)
	if err != nil {
		return nil, err
	}
	if c, isCloser := vs.(io.Closer); isCloser {
		s.closers = append(s.closers, c.Close)
	}
	if cfg.VectorDB.SeedFile != "" {
		n, err := IngestFile(ctx, catalog, vs, cfg.VectorDB.SeedFile)
		if err != nil {
			return nil, err
		}
		slog.Info("vector store seeded", "file", cfg.VectorDB.SeedFile, "documents", n)
	}

	hist, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	if c, isCloser := hist.(io.Closer); isCloser {
		s.closers = append(s.closers, c.Close)
	}

	profiles, err := profile.Load(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	if _, err := profiles.Get(cfg.Defaults.Profile); err != nil {
		return nil, fmt.Errorf("defaults profile_name: %w, available: %s", err, quoteList(profiles.Names()))
	}

	pipeline := chat.NewPipeline(catalog, vs, profiles, hist, chat.Config{
		SearchTopN:    cfg.VectorDB.SearchTopN,
		EmbedMaxChars: cfg.Models.EmbedMaxChars,
	})

	fetcher, err := tempest.NewFetcher(cfg.Tempest)
	if err != nil {
		return nil, err
	}

	s.accel, err = NewAccelerator(catalog, profiles, pipeline, fetcher, cfg.Defaults, cfg.Tempest.Concurrency)
	if err != nil {
		return nil, err
	}

	s.e = newEcho(cfg)
	RestHandler(s.accel, s.auth, s.e)

	ok = true
	return s, nil
}

func newEcho(cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.Server.Debug
	e.Use(middleware.Recover())
	if len(cfg.Server.CORS) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORS,
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}
	if cfg.Observe.Prometheus {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	return e
}

// Start serves until ctx is done, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	go s.purgeTokens(ctx)

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("rca server listening", "address", s.cfg.Server.Address)
		srvErr <- s.e.Start(s.cfg.Server.Address)
	}()

	select {
	case err := <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdown_timeout)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}

func (s *Server) purgeTokens(ctx context.Context) {
	ticker := time.NewTicker(_purge_interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.auth.PurgeExpired(ctx)
			if err != nil {
				slog.Error("failed purge tokens", "error", err)
				continue
			}
			slog.Debug("expired tokens purged", "count", n)
		}
	}
}

// Close releases databases and connections.
func (s *Server) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, s.closers[i]())
	}
	s.closers = nil
	return err
}
