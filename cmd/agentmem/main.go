// Command agentmem serves the memory block search API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/api"
	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/expand"
	"github.com/dshills/agentmem/internal/rank"
	"github.com/dshills/agentmem/internal/retriever"
	"github.com/dshills/agentmem/internal/search"
	"github.com/dshills/agentmem/internal/store"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("agentmem failed")
	}
}

func run(log zerolog.Logger) error {
	cfgStore := config.NewStore()
	cfg, err := cfgStore.Snapshot()
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	provider, err := embedder.New(cfg.Embedding)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	synonyms, err := expand.LoadSynonyms(cfg.Expansion.SynonymsPath)
	if err != nil {
		return err
	}
	rewriter, err := newRewriter(cfg.Expansion)
	if err != nil {
		return err
	}
	expander := expand.New(synonyms, rewriter, log)

	reranker, err := rank.NewReranker(&cfg.Ranking)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := search.NewService(
		cfgStore,
		st,
		expander,
		retriever.NewBasic(st),
		retriever.NewFulltext(st, log),
		search.NewFallbackController(retriever.NewSemantic(st, provider), log),
		rank.New(reranker, log),
		search.NewMetrics(registry),
		log,
	)

	server := api.New(cfg.HTTPAddr, cfgStore, st, svc, provider, registry, log)

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	log.Info().
		Str("db", cfg.DBPath).
		Str("provider", string(cfg.Embedding.Provider)).
		Str("build_mode", store.BuildMode).
		Msg("agentmem started")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRewriter(cfg config.Expansion) (expand.Rewriter, error) {
	switch cfg.RewriteProvider {
	case config.RewriteOff:
		return nil, nil
	case config.RewriteMock:
		return expand.MockRewriter{}, nil
	case config.RewriteOllama:
		return expand.NewOllamaRewriter(cfg.RewriteURL, cfg.RewriteModel, cfg.RewriteTimeout), nil
	}
	return nil, errors.New("unknown rewrite provider " + string(cfg.RewriteProvider))
}
