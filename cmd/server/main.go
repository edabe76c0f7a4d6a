package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/iliyamo/course-enrollment/internal/config"
	"github.com/iliyamo/course-enrollment/internal/database"
	"github.com/iliyamo/course-enrollment/internal/handler"
	"github.com/iliyamo/course-enrollment/internal/logger"
	"github.com/iliyamo/course-enrollment/internal/middleware"
	"github.com/iliyamo/course-enrollment/internal/monitoring"
	"github.com/iliyamo/course-enrollment/internal/queue"
	"github.com/iliyamo/course-enrollment/internal/repository"
	"github.com/iliyamo/course-enrollment/internal/router"
	"github.com/iliyamo/course-enrollment/internal/service"
	"github.com/iliyamo/course-enrollment/internal/storage"
	"github.com/iliyamo/course-enrollment/internal/sweeper"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()

	lg, logCloser := logger.New(logger.Options{Env: cfg.Env, Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DefaultCapacity); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	repo := repository.NewReservationRepo(db, cfg.DefaultCapacity)

	receipts, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("receipt storage: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.New(reg)

	publisher := queue.NewPublisher(cfg.RabbitURL)
	defer publisher.Close()
	go func() {
		if err := queue.StartAuditConsumer(ctx, cfg.RabbitURL, cfg.AuditLogPath); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("audit consumer stopped", "err", err)
		}
	}()

	svc := service.NewReservationService(service.Options{
		Store:           repo,
		Receipts:        receipts,
		IsAdmin:         middleware.IsAdmin,
		Notifier:        publisher,
		Metrics:         metrics,
		Logger:          lg,
		MaxReceiptBytes: cfg.Storage.MaxBytes,
	})

	var sw *sweeper.Sweeper
	if cfg.Sweep.Enabled {
		sw, err = sweeper.New(repo, cfg.Sweep)
		if err != nil {
			log.Fatalf("sweeper: %v", err)
		}
		if err := sw.Start(); err != nil {
			log.Fatalf("start sweeper: %v", err)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		lg.Warn("redis unreachable, rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError || v.Error != nil {
				level = slog.LevelError
			}
			lg.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("ip", v.RemoteIP),
			)
			return nil
		},
	}))

	router.RegisterRoutes(e, db, monitoring.Handler(reg))
	router.RegisterPublic(e, handler.NewReservationHandler(svc, cfg.Storage.MaxBytes), limiter)
	router.RegisterAdmin(e, handler.NewAdminHandler(svc), handler.NewAuthHandler(cfg), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	if sw != nil {
		if err := sw.Stop(); err != nil {
			lg.Warn("stop sweeper", "err", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown", "err", err)
	}
}
