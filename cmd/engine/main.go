// Command engine runs the graduation trading service: candidate feeds, the
// admission and execution flow, position monitoring, the daily rollover and
// the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"graduation-engine/internal/alert"
	"graduation-engine/internal/config"
	"graduation-engine/internal/control"
	"graduation-engine/internal/discovery"
	"graduation-engine/internal/domain"
	"graduation-engine/internal/engine"
	"graduation-engine/internal/execution"
	"graduation-engine/internal/gate"
	"graduation-engine/internal/ingestion"
	"graduation-engine/internal/ledger"
	"graduation-engine/internal/logging"
	"graduation-engine/internal/position"
	"graduation-engine/internal/scheduler"
	"graduation-engine/internal/scoring"
	"graduation-engine/internal/sizing"
	"graduation-engine/internal/solana"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfgPath := flag.String("config", os.Getenv("GE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores failed", zap.Error(err))
	}
	defer closeStores()

	cfgStore := config.NewStore(cfg.Trading)

	// Prices
	prices := ingestion.NewPriceBook()
	var sources []ingestion.Source
	if cfg.Feeds.WSURL != "" {
		ws, err := solana.NewWSClient(ctx, cfg.Feeds.WSURL, &solana.WSClientConfig{Logger: logger})
		if err != nil {
			logger.Fatal("connect candidate websocket failed", zap.Error(err))
		}
		defer ws.Close()
		sources = append(sources, ingestion.NewWSSource(ws, logger))
		go func() {
			if err := prices.Run(ctx, ingestion.NewWSPriceSource(ws, logger)); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("price feed stopped", zap.Error(err))
			}
		}()
	}
	if cfg.Feeds.RPCURL != "" {
		rpc := solana.NewHTTPClient(cfg.Feeds.RPCURL, solana.WithLogger(logger))
		sources = append(sources, ingestion.NewPollSource(ingestion.PollSourceOptions{
			RPC:      rpc,
			Interval: cfg.Feeds.PollInterval,
			Limit:    cfg.Feeds.PollLimit,
			Logger:   logger,
		}))
	}
	if len(sources) == 0 {
		logger.Fatal("no candidate feed configured: set feeds.ws_url or feeds.rpc_url")
	}

	// Alerts
	sinks := alert.MultiEmitter{alert.NewLogEmitter(logger)}
	if cfg.Telegram.Token != "" {
		bot, err := alert.NewTelegramBot(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal("telegram init failed", zap.Error(err))
		}
		kinds := make([]alert.Kind, 0, len(cfg.Telegram.Kinds))
		for _, k := range cfg.Telegram.Kinds {
			kinds = append(kinds, alert.Kind(k))
		}
		sinks = append(sinks, alert.NewTelegramEmitter(bot, cfg.Telegram.ChatID, kinds...))
	}
	alerts := alert.NewAsyncEmitter(sinks, alert.AsyncEmitterOptions{
		QueueSize: cfg.Engine.AlertQueueSize,
		Logger:    logger,
	})

	// Ledger
	book := ledger.New(ledger.Options{
		Limits: ledger.LimitsFromConfig(cfg.Trading.Sizing),
		Store:  st.ledgerState,
		Logger: logger,
	})
	if err := book.Restore(ctx); err != nil {
		logger.Fatal("restore ledger failed", zap.Error(err))
	}

	// Execution
	var idem execution.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		idem = execution.NewRedisIdempotencyStore(rdb, cfg.Redis.Prefix)
	}
	var live execution.Router
	if cfg.Router.URL != "" {
		live = execution.NewHTTPRouter(solana.NewHTTPClient(cfg.Router.URL,
			solana.WithTimeout(cfg.Router.Timeout),
			solana.WithMaxRetries(0),
			solana.WithLogger(logger),
		))
	} else if cfg.Mode() == domain.ModeLive {
		logger.Fatal("LIVE mode requires router.url")
	}
	exec := execution.NewManager(execution.Options{
		Paper: execution.NewPaperRouter(execution.PaperRouterOptions{
			Prices:      prices,
			SlippageBps: func() int { return cfgStore.Load().Execution.PaperSlippageBps },
		}),
		Live:     live,
		Store:    idem,
		Settings: func() domain.ExecutionConfig { return cfgStore.Load().Execution },
		Logger:   logger,
	})

	// Positions
	positions := position.NewEngine(position.Options{
		Exiter:  exec,
		Ledger:  book,
		Prices:  prices,
		Store:   st.positions,
		History: st.tradeHistory,
		Alerts:  alerts,
		Logger:  logger,
	})
	recovered, err := positions.Recover(ctx)
	if err != nil {
		logger.Fatal("recover positions failed", zap.Error(err))
	}
	logger.Info("positions recovered", zap.Int("count", recovered))

	eng, err := engine.New(engine.Options{
		Normalizer: discovery.NewNormalizer(discovery.NormalizerOptions{
			Store:  st.candidates,
			Logger: logger,
		}),
		Gates:        gate.NewPipeline(),
		Scorer:       scoring.NewEngine(),
		Sizer:        sizing.NewSizer(),
		Ledger:       book,
		Executor:     exec,
		Positions:    positions,
		Config:       cfgStore,
		Mode:         cfg.Mode(),
		GateResults:  st.gateResults,
		Scores:       st.scores,
		ScoreHistory: st.scoreHistory,
		Alerts:       alerts,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	// Daily rollover
	cronRunner := scheduler.New(ctx, logger)
	if cfg.Cron.Enabled {
		if err := scheduler.ScheduleRollover(cronRunner, cfg.Cron.Rollover, book); err != nil {
			logger.Fatal("schedule rollover failed", zap.Error(err), zap.String("spec", cfg.Cron.Rollover))
		}
	}
	cronRunner.Start()

	// Control API
	handler := &control.Handler{
		Engine:    eng,
		Positions: positions,
		Ledger:    book,
		Config:    cfgStore,
		Logger:    logger,
	}
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: control.NewRouter(handler, cfg.App.Env),
	}
	go func() {
		logger.Info("control api listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control api stopped", zap.Error(err))
			stop()
		}
	}()

	events, err := ingestion.Merge(ctx, sources...)
	if err != nil {
		logger.Fatal("subscribe feeds failed", zap.Error(err))
	}
	logger.Info("engine started",
		zap.String("mode", eng.Mode().String()),
		zap.String("config", cfg.Trading.Name),
		zap.Int("config_version", cfg.Trading.Version),
		zap.Int("workers", cfg.Engine.Workers),
	)
	if err := eng.Run(ctx, events, cfg.Engine.Workers); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped", zap.Error(err))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("control api shutdown", zap.Error(err))
	}
	cronRunner.Stop()
	if err := positions.Shutdown(shutdownCtx); err != nil {
		logger.Warn("position monitors did not stop in time", zap.Error(err))
	}
	if err := alerts.Close(shutdownCtx); err != nil {
		logger.Warn("alert queue not drained", zap.Error(err))
	}
	logger.Info("shutdown complete", zap.Any("stats", eng.Stats()))
}
