package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autopilot/internal/approval"
	"autopilot/internal/auth"
	"autopilot/internal/cache"
	"autopilot/internal/config"
	cronrunner "autopilot/internal/cron"
	"autopilot/internal/db"
	"autopilot/internal/decision"
	"autopilot/internal/events"
	"autopilot/internal/executor"
	"autopilot/internal/guardrail"
	"autopilot/internal/handler"
	"autopilot/internal/learning"
	"autopilot/internal/logger"
	"autopilot/internal/notify"
	"autopilot/internal/platform"
	"autopilot/internal/queue"
	"autopilot/internal/repository"
	gormrepository "autopilot/internal/repository/gorm"
	"autopilot/internal/rollback"
	"autopilot/internal/service"
)

func main() {
	cfgPath := os.Getenv("AP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	var archive repository.Archive
	var settingsRepo repository.Settings = repository.NewMemorySettings()
	if dbConn != nil {
		if err := db.AutoMigrate(dbConn); err != nil {
			log.Fatal("auto-migrate failed", zap.Error(err))
		}
		store := gormrepository.New(dbConn.Gorm)
		archive = store
		settingsRepo = store
	} else {
		log.Warn("db dsn empty: running without archive, settings kept in memory")
	}

	settingsSvc := &service.SystemSettingsService{Repo: settingsRepo}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background(), map[string]bool{
		service.FeatureAutoExecute: cfg.Engine.AutoExecute,
	}); err != nil {
		log.Warn("init default system switches failed", zap.Error(err))
	}

	ledger := cache.FromConfig(cfg.Redis)
	if c, ok := ledger.(interface{ Close() error }); ok {
		defer c.Close()
	}

	rules, err := guardrail.Resolve(cfg.Guardrail)
	if err != nil {
		log.Fatal("guardrail policy invalid", zap.Error(err))
	}

	var notifier notify.Notifier = notify.LogNotifier{Logger: logger.Component(log, "alerts")}
	if url := strings.TrimSpace(cfg.Notify.WebhookURL); url != "" {
		notifier = notify.Multi{
			notifier,
			notify.WebhookNotifier{URL: url, Service: "autopilot", HTTP: &http.Client{Timeout: cfg.Notify.Timeout}},
		}
	}

	hub := events.NewHub(logger.Component(log, "events"))
	adapters := platform.FromConfig(cfg.Platforms, logger.Component(log, "platform"))
	registry := rollback.NewRegistry(adapters, ledger, notifier, logger.Component(log, "rollback"))

	q := queue.New(hub, logger.Component(log, "queue"))
	q.RetryBudget = cfg.Engine.DefaultRetryBudget
	q.ActionTimeout = cfg.Engine.DefaultTimeout
	q.MaxHistory = cfg.Engine.MaxHistory

	gate := &approval.Gate{
		BudgetChangePct:    cfg.Approval.BudgetChangePct,
		AutoExecConfidence: cfg.Approval.AutoExecConfidence,
		Logger:             logger.Component(log, "approval"),
	}
	calibration := decision.NewCalibration()
	generator := &decision.Generator{
		Rules:       decision.DefaultRules(cfg.Engine.EmergencySpendFloor),
		Guardrails:  guardrail.New(rules, notifier, logger.Component(log, "guardrail")),
		Gate:        gate,
		Calibration: calibration,
		Logger:      logger.Component(log, "decision"),
	}
	learner := &learning.Learner{
		Decisions:   q,
		Calibration: calibration,
		Archive:     archive,
		Events:      hub,
		Logger:      logger.Component(log, "learning"),
	}
	pool := &executor.Pool{
		Queue: q,
		Runner: &executor.Runner{
			Adapter:  adapters,
			Rollback: registry,
			Logger:   logger.Component(log, "executor"),
		},
		Archive:      archive,
		Notifier:     notifier,
		Workers:      cfg.Engine.Workers,
		PollInterval: cfg.Engine.PollInterval,
		Logger:       logger.Component(log, "executor"),
		Enabled: func(ctx context.Context) bool {
			return settingsSvc.IsEnabled(ctx, service.FeatureExecutor, true)
		},
	}
	engine := &service.Engine{
		Generator:        generator,
		Gate:             gate,
		Queue:            q,
		Pool:             pool,
		Learner:          learner,
		Outcomes:         adapters,
		Archive:          archive,
		Settings:         settingsSvc,
		Events:           hub,
		Logger:           logger.Component(log, "engine"),
		LearningDelay:    cfg.Engine.LearningDelay,
		ArchiveRetention: cfg.Engine.ArchiveRetention,
		MaxHistory:       cfg.Engine.MaxHistory,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer}
	if !jwt.Enabled() {
		log.Warn("auth.jwt_secret empty: write endpoints accept the actor from the request body")
	}
	(&handler.HealthHandler{DB: dbConn, Cache: ledger}).Register(router)
	(&handler.DecisionsHandler{Engine: engine, Archive: archive, JWT: jwt}).Register(router)
	(&handler.ExecutionsHandler{Engine: engine, Archive: archive, JWT: jwt}).Register(router)
	(&handler.SystemSettingsHandler{Repo: settingsRepo, Settings: settingsSvc, JWT: jwt}).Register(router)
	(&handler.EventsHandler{Hub: hub, Logger: logger.Component(log, "ws"), Origins: cfg.Server.WSOrigins}).Register(router)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	cronRunner := cronrunner.New(logger.Component(log, "cron"), baseCtx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add("expiry_sweep", cfg.Cron.ExpirySweep, func(ctx context.Context) {
			engine.SweepExpired(ctx)
		}); err != nil {
			log.Warn("cron register expiry sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("learning_due", cfg.Cron.LearningDue, func(ctx context.Context) {
			if n := engine.LearnDue(ctx); n > 0 {
				log.Info("learned from executed decisions", zap.Int("count", n))
			}
		}); err != nil {
			log.Warn("cron register learning sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("history_trim", cfg.Cron.HistoryTrim, func(ctx context.Context) {
			dropped, deleted := engine.TrimHistory(ctx)
			if dropped > 0 || deleted > 0 {
				log.Info("trimmed history", zap.Int("dropped", dropped), zap.Int64("archived_deleted", deleted))
			}
		}); err != nil {
			log.Warn("cron register history trim failed", zap.Error(err))
		}
		cronRunner.Start()
	}
	defer cronRunner.Stop()

	go func() {
		if err := hub.Run(baseCtx, time.Minute); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("event hub stopped", zap.Error(err))
		}
	}()
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pool.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("executor pool stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	cancelBase()
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		log.Warn("executor pool did not drain before shutdown deadline")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
