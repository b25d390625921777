package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/news-provenance/internal/agent"
	"github.com/DeafMist/news-provenance/internal/archive"
	"github.com/DeafMist/news-provenance/internal/config"
	"github.com/DeafMist/news-provenance/internal/elasticsearch"
	"github.com/DeafMist/news-provenance/internal/logger"
	"github.com/DeafMist/news-provenance/internal/pipeline"
	"github.com/DeafMist/news-provenance/internal/sqlite"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	history, err := sqlite.New(cfg.HistoryDBPath)
	if err != nil {
		log.Error("open history", slog.Any("err", err), slog.String("path", cfg.HistoryDBPath))
		os.Exit(1)
	}
	defer history.Close()

	researcher := agent.New(agent.Config{
		BaseURL:   cfg.ResearchAgentURL,
		APIKey:    cfg.ResearchAgentKey,
		Timeout:   cfg.AgentTimeout,
		RateLimit: cfg.AgentRateLimit,
		Burst:     cfg.AgentBurst,
	})
	verifier := agent.New(agent.Config{
		BaseURL:   cfg.VerifierURL,
		APIKey:    cfg.VerifierKey,
		Timeout:   cfg.AgentTimeout,
		RateLimit: cfg.AgentRateLimit,
		Burst:     cfg.AgentBurst,
	})
	if !researcher.Configured() {
		log.Warn("RESEARCH_AGENT_URL not set, query tasks will fail")
	}
	if !verifier.Configured() {
		log.Warn("VERIFIER_URL not set, verdicts will be undetermined")
	}

	opts := pipeline.Options{
		MaxConcurrent: cfg.MaxConcurrentTasks,
		TaskTTL:       cfg.TaskTTL,
		History:       history,
	}
	if cfg.ArchiveEnabled {
		publisher := archive.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer publisher.Close()
		opts.Publisher = publisher
	}

	builder := timeline.NewBuilder(timeline.NewNormalizer(), log)
	svc := pipeline.New(researcher, verifier, builder, log, opts)
	svc.StartPruner(cfg.PruneInterval)
	defer svc.Close()

	srv := &server{log: log, cfg: cfg, svc: svc, es: esClient, history: history}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.Bool("archive", cfg.ArchiveEnabled),
			slog.Int("max_concurrent_tasks", cfg.MaxConcurrentTasks),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
