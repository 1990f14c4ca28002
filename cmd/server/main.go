// Command server runs the SentryCore pipeline: fetch scheduler, ingest
// coordinator, embedding worker, match engine, decision pipeline and
// delivery coalescer, all driven off one Timer Tick scheduler (C10),
// plus a thin ops HTTP surface for health and status.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/dida1024/sentrycore/internal/analytics"
	"github.com/dida1024/sentrycore/internal/app"
	"github.com/dida1024/sentrycore/internal/budget"
	"github.com/dida1024/sentrycore/internal/coalescer"
	"github.com/dida1024/sentrycore/internal/coalescer/mail"
	"github.com/dida1024/sentrycore/internal/coalescer/render"
	"github.com/dida1024/sentrycore/internal/config"
	"github.com/dida1024/sentrycore/internal/decision"
	"github.com/dida1024/sentrycore/internal/embedding"
	"github.com/dida1024/sentrycore/internal/eventbus"
	"github.com/dida1024/sentrycore/internal/fetch"
	"github.com/dida1024/sentrycore/internal/ingest"
	"github.com/dida1024/sentrycore/internal/match"
	"github.com/dida1024/sentrycore/internal/pipeline"
	"github.com/dida1024/sentrycore/internal/pkg/httputil"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
	"github.com/dida1024/sentrycore/internal/rawstore"
	"github.com/dida1024/sentrycore/internal/repository/postgres"
	"github.com/dida1024/sentrycore/internal/pkg/distlock"
	"github.com/dida1024/sentrycore/internal/tick"
)

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return rest[:slash]
	}
	return rest
}

func main() {
	cfgPath := os.Getenv("SENTRYCORE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database (%s): %v", extractHost(cfg.Database.URL), err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- repositories -----------------------------------------------
	sourceRepo := postgres.NewSourceRepo(db)
	itemRepo := postgres.NewItemRepo(db)
	ingestLogRepo := postgres.NewIngestLogRepo(db)
	goalRepo := postgres.NewGoalRepo(db)
	matchRepo := postgres.NewMatchRepo(db)
	decisionRepo := postgres.NewDecisionRepo(db)
	outboxRepo := postgres.NewOutboxRepo(db)
	budgetRepo := postgres.NewBudgetRepo(db)
	userRepo := postgres.NewUserRepo(db)

	// --- budget governor (C9) ----------------------------------------
	governor := budget.NewGovernor(budgetRepo, 5.0)

	// --- embedding provider (C5) --------------------------------------
	embedProvider, err := embedding.NewBedrockProvider(ctx, cfg.Embedding.AWSRegion, cfg.Embedding.BedrockModelID, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("init bedrock embedding provider: %v", err)
	}

	// --- boundary/push-worthiness judge (optional) --------------------
	var judge decision.Judge
	if bj, err := decision.NewBedrockJudge(ctx, cfg.LLM.AWSRegion, cfg.LLM.BedrockModelID); err != nil {
		logger.Warn("server: bedrock judge unavailable, decision pipeline will use deterministic fallback", "error", err.Error())
	} else {
		judge = bj
	}

	// --- mail sender (SMTP or SES) -------------------------------------
	var sender mail.Sender
	fromAddr := cfg.SMTP.FromAddr
	if cfg.SES.Enabled {
		sesSender, err := mail.NewSESSender(ctx, cfg.SES.Region)
		if err != nil {
			log.Fatalf("init ses sender: %v", err)
		}
		sender = sesSender
		fromAddr = cfg.SES.FromAddr
	} else {
		sender = mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	}

	// --- in-process queues (ingest -> embed -> match) ------------------
	embedQueue := eventbus.NewItemQueue(1000)
	matchQueue := eventbus.NewItemQueue(1000)

	// --- decision pipeline (C7) -----------------------------------------
	immediateBuffer := coalescer.NewImmediateBuffer(redisClient)
	proposalSink := app.NewProposalSink(decisionRepo, immediateBuffer)
	decisionPipeline := decision.NewPipeline(judge, proposalSink)

	thresholds := decision.Thresholds{
		Immediate: cfg.Decision.ImmediateThreshold,
		Boundary:  cfg.Decision.BoundaryThreshold,
		Batch:     cfg.Decision.BatchThreshold,
	}
	dispatcher := app.NewDispatcher(itemRepo, goalRepo, matchRepo, sourceRepo, governor, sourceRepo, decisionPipeline, thresholds)

	// --- match engine (C6) ------------------------------------------------
	matchStore := app.NewMatchStore(matchRepo, sourceRepo, goalRepo)
	matchWeights := match.Weights{
		CosSim:    cfg.Match.WeightCosSim,
		Freshness: cfg.Match.WeightFreshness,
		Priority:  cfg.Match.WeightPriority,
		MustHit:   cfg.Match.WeightMustHit,
	}
	matchEngine := match.NewEngine(goalRepo, sourceRepo, matchStore, dispatcher, matchWeights)
	matchDispatcher := app.NewMatchDispatcher(matchQueue, itemRepo, matchEngine, cfg.Embedding.BatchSize)

	// --- embedding worker (C5) ---------------------------------------------
	embedWorker := embedding.NewWorker(itemRepo, sourceRepo, governor, embedProvider, app.MatchQueue{Q: matchQueue}, embedding.WorkerConfig{
		BatchSize:   cfg.Embedding.BatchSize,
		USDPerToken: cfg.Budget.EmbeddingUSDPerToken,
	})

	// --- optional raw-body archival (off the hot path) --------------------
	var archiver ingest.RawArchiver
	if cfg.Storage.Enabled {
		store, err := rawstore.NewStore(ctx, rawstore.Config{Bucket: cfg.Storage.Bucket, Prefix: "sentrycore/raw/", Region: cfg.Storage.Region})
		if err != nil {
			log.Fatalf("init rawstore: %v", err)
		}
		archiver = store
	}

	// --- fetch scheduler + ingest pipeline (C2-C4) -----------------------
	coordinator := ingest.NewCoordinator(itemRepo, ingestLogRepo, archiver)
	fetchOpts := fetch.Options{
		Timeout:    time.Duration(cfg.Scheduler.FetchTimeoutSeconds) * time.Second,
		MaxRetries: cfg.Scheduler.FetchMaxRetries,
	}
	schedulerCfg := fetch.SchedulerConfig{
		MaxSourcesPerTick:         cfg.Scheduler.MaxSourcesPerTick,
		EmptyStreakThreshold:      cfg.Scheduler.EmptyStreakThreshold,
		EmptyStreakCooldownFactor: cfg.Scheduler.EmptyStreakCooldownFactor,
	}
	ingestPipeline := pipeline.NewIngestPipeline(sourceRepo, coordinator, fetchOpts, schedulerCfg, app.EmbedQueue{Q: embedQueue}, 100)
	fetchScheduler := fetch.NewScheduler(sourceRepo, ingestPipeline, schedulerCfg)

	// --- delivery coalescer (C8) --------------------------------------------
	renderEngine := render.NewEngine(cfg.Coalescer.RedirectorBaseURL)
	notifier := app.NewNotifier(itemRepo, goalRepo, userRepo, outboxRepo, proposalSink, renderEngine, fromAddr)

	batchWindow := coalescer.NewBatchWindow(decisionRepo, goalRepo)
	digest := coalescer.NewDigest(decisionRepo, goalRepo, cfg.Coalescer.DigestTopN)
	outboxWorker := coalescer.NewOutboxWorker(outboxRepo, sender, decisionRepo)

	immediateDispatcher := app.NewImmediateDispatcher(immediateBuffer, notifier)
	batchDispatcher := app.NewBatchDispatcher(batchWindow, notifier)
	digestDispatcher := app.NewDigestDispatcher(digest, notifier)
	outboxDispatcher := app.NewOutboxDispatcher(outboxWorker, 100)

	// --- drain the embed/match queues in the background -------------------
	go embedQueue.Run(ctx, 4, func(workCtx context.Context, itemID string) {
		// The embedding worker's own SelectPendingEmbedding tick already
		// FIFO-polls the table; this drain just wakes it promptly rather
		// than waiting for the next tick boundary.
		if err := embedWorker.Tick(workCtx); err != nil {
			logger.Error("server: embed tick (queue-triggered) failed", "error", err.Error())
		}
	})

	// --- tick scheduler (C10) ----------------------------------------------
	jobs := []tick.Job{
		{Name: "fetch-scheduler", Interval: time.Duration(cfg.Scheduler.TickIntervalSeconds) * time.Second, Run: fetchScheduler.Tick},
		{Name: "embed-pending", Interval: time.Duration(cfg.Embedding.TickIntervalSeconds) * time.Second, Run: embedWorker.Tick},
		{Name: "match-dispatch", Interval: tick.EmbedPendingInterval, Run: matchDispatcher.Tick},
		{Name: "immediate-flush", Interval: tick.ImmediateFlushInterval, Run: immediateDispatcher.Tick},
		{Name: "batch-window", Interval: tick.BatchWindowInterval, Run: batchDispatcher.Tick},
		{Name: "digest", Interval: tick.DigestInterval, Run: digestDispatcher.Tick},
		{Name: "outbox-drain", Interval: 30 * time.Second, Run: outboxDispatcher.Tick},
	}

	if cfg.Snowflake.Enabled {
		exporter, err := analytics.NewExporter(db, analytics.Config{
			Account: cfg.Snowflake.Account, Username: cfg.Snowflake.Username,
			Password: cfg.Snowflake.Password, Database: cfg.Snowflake.Database, Schema: cfg.Snowflake.Schema,
		})
		if err != nil {
			log.Fatalf("init snowflake exporter: %v", err)
		}
		defer exporter.Close()
		jobs = append(jobs, tick.Job{Name: "analytics-export", Interval: 24 * time.Hour, Run: func(tickCtx context.Context) error {
			return exporter.ExportDay(tickCtx, time.Now().AddDate(0, 0, -1))
		}})
	}

	scheduler := tick.NewScheduler(jobs...)
	scheduler.Locker = func(jobName string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, "tick:"+jobName, 2*time.Minute)
	}
	scheduler.Start(ctx)

	// --- thin ops HTTP surface: health/status only, no CRUD API -----------
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{http.MethodGet}}))

	router.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "alive"})
	})
	router.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "redis unreachable")
			return
		}
		httputil.OK(w, map[string]string{"status": "ready"})
	})
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]interface{}{
			"embedding_model":       embedProvider.Model(),
			"embedding_error_count": embedWorker.ErrorCount(),
		})
	})

	httpServer := &http.Server{Addr: cfg.Server.Addr(), Handler: router}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server: listening", "addr", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	logger.Info("server: all components started")
	<-done
	logger.Info("server: shutting down")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: http shutdown error", "error", err.Error())
	}

	logger.Info("server: stopped")
}
