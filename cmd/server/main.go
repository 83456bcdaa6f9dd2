package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"qr-cipher-bot/internal/adapters/primary/http/handlers"
	"qr-cipher-bot/internal/adapters/primary/http/middleware"
	"qr-cipher-bot/internal/adapters/secondary/fernet"
	"qr-cipher-bot/internal/adapters/secondary/memory"
	"qr-cipher-bot/internal/adapters/secondary/postgres"
	"qr-cipher-bot/internal/adapters/secondary/qr"
	"qr-cipher-bot/internal/adapters/secondary/telegram"
	"qr-cipher-bot/internal/config"
	output "qr-cipher-bot/internal/core/ports/output"
	"qr-cipher-bot/internal/core/services"
)

func main() {
	// A missing .env is fine; the container gets its settings from the environment.
	_ = godotenv.Load()

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	stop := make(chan struct{})
	defer close(stop)

	// Update log: Postgres when configured, in-memory otherwise.
	var updates output.UpdateLog
	if cfg.Database.Enabled() {
		pool, err := openPool(cfg)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer pool.Close()

		if err := postgres.EnsureSchema(context.Background(), pool); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		updates = postgres.NewUpdateLogRepository(pool)
		go pruneUpdateLog(pool, cfg.UpdateLog.TTL, stop)
		log.Info("using postgres update log")
	} else {
		updates = memory.NewUpdateLog(cfg.UpdateLog.Size, cfg.UpdateLog.TTL)
		log.Info("using in-memory update log")
	}

	// Secondary adapters
	tg, err := telegram.NewTelegramClient(&cfg.Telegram)
	if err != nil {
		log.Fatalf("telegram client: %v", err)
	}
	cipher, err := fernet.NewCipher(&cfg.Cipher)
	if err != nil {
		log.Fatalf("fernet cipher: %v", err)
	}
	encoder := qr.NewEncoder(&cfg.QR)
	decoder := qr.NewDecoder(cfg.Telegram.MaxPhotoBytes)

	// Core services
	access := services.NewAccessPolicy(cfg.Access.AllowedUsernames)
	if access.Open() {
		log.Warn("ALLOWED_USERNAMES is empty, the bot answers everyone")
	}
	var throttle *services.ChatThrottle
	if cfg.Throttle.PerSecond > 0 {
		throttle = services.NewChatThrottle(cfg.Throttle.PerSecond, cfg.Throttle.Burst)
		throttle.StartPruning(time.Minute, 10*time.Minute, stop)
	}
	botSvc := services.NewBotService(tg, cipher, encoder, decoder, updates, access, throttle)

	// Primary adapter
	h := handlers.New(botSvc, cfg.Telegram.WebhookSecret)
	if cfg.Telegram.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET_TOKEN is empty, webhook calls are not authenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.Metrics(), gin.Recovery())
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
		return
	}

	log.Info("server stopped")
}

func openPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Database.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("database connection established")
	return pool, nil
}

func pruneUpdateLog(pool *pgxpool.Pool, maxAge time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := postgres.Prune(ctx, pool, maxAge)
			cancel()
			if err != nil {
				log.WithError(err).Warn("prune update log failed")
				continue
			}
			log.WithField("rows", n).Debug("update log pruned")
		}
	}
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
