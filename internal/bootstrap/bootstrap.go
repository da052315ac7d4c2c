package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brani-milo/kerberus-sub000/internal/config"
	"github.com/brani-milo/kerberus-sub000/internal/core/ports"
	"github.com/brani-milo/kerberus-sub000/internal/core/usecase"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/embedding/bgem3"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/queue/nats"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/repository/postgres"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/rerank/bge"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/resilience"
	"github.com/brani-milo/kerberus-sub000/internal/infrastructure/vector/qdrant"
	"github.com/brani-milo/kerberus-sub000/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.SearchMetrics

	Searcher  ports.TriadSearcher
	Publisher ports.EventPublisher

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	exclusions := postgres.NewExclusionRepository(db, time.Duration(cfg.ExclusionTTLSecs)*time.Second)
	if err := exclusions.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	store := qdrant.New(cfg.QdrantURL, qdrant.Options{Executor: executor})
	embedder := bgem3.New(cfg.EmbedURL, bgem3.Options{Executor: executor})
	encoder := bge.New(cfg.RerankURL, bge.Options{Executor: executor})

	var threshold *float64
	if cfg.SearchScoreMinSet {
		t := cfg.SearchScoreMin
		threshold = &t
	}
	reranker := usecase.NewReranker(encoder, cfg.SearchRecencyWeight, threshold, logger)

	laneConfigs, err := config.LoadLanes(cfg.LanesFile)
	if err != nil {
		return nil, fmt.Errorf("load lanes: %w", err)
	}

	lanes := make([]*usecase.LanePipeline, 0, len(laneConfigs))
	for _, lc := range laneConfigs {
		laneCfg := usecase.LaneConfig{
			Name:           lc.Name,
			Collections:    lc.Collections,
			DropYearRange:  lc.DropYearRange,
			DropFilterKeys: lc.DropFilterKeys,
			FetchLimit:     firstPositive(lc.FetchLimit, cfg.SearchFetchLimit),
			MMRPool:        firstPositive(lc.MMRPool, cfg.SearchMMRPool),
			RRFK:           firstPositive(lc.RRFK, cfg.SearchRRFK),
			Lambda:         lc.Lambda,
		}
		if laneCfg.Lambda <= 0 {
			laneCfg.Lambda = cfg.SearchLambda
		}
		lanes = append(lanes, usecase.NewLanePipeline(
			laneCfg, store, reranker, exclusions, usecase.DefaultMMRTiers(), logger,
		))
	}

	searcher := usecase.NewTriadSearch(embedder, lanes, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewSearchMetrics("search-api"),
		Searcher:  searcher,
		Publisher: publisher,
		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
