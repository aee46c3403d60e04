package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bigzbot/internal/audit"
	"bigzbot/internal/booking"
	"bigzbot/internal/bot"
	"bigzbot/internal/config"
	"bigzbot/internal/events"
	"bigzbot/internal/metrics"
	"bigzbot/internal/persistence"
	"bigzbot/internal/schedule"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("BIGZBOT_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Fatal().Msg("set telegram.bot_token in config")
	}

	store, err := persistence.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open state store error")
	}
	defer store.Close()

	auditSvc, err := audit.Open(auditPath(cfg.Database.Path), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit db error")
	}
	defer auditSvc.Close()

	bookingClient := booking.NewClient(cfg.BookingSite.BaseURL, &logger)
	scheduleClient := schedule.NewAPIClient(cfg.ScheduleAPI.BaseURL, &logger)

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.ScheduleAPI.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		scheduleClient.UseRedisCache(rdb, time.Duration(cfg.ScheduleAPI.CacheTTLSeconds)*time.Second)
	}

	bus := events.NewEventBus()
	registerAuditSubscribers(bus, auditSvc, &logger)

	b, err := bot.New(cfg, store, bookingClient, scheduleClient, bus, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}
	b.UseAuditExporter(auditSvc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backupDir := cfg.Backup.Path
		if backupDir == "" {
			backupDir = "backups"
		}
		go store.RunBackupLoop(ctx, backupDir, cfg.BackupInterval(), cfg.BackupRetention())
	}

	logger.Info().Msg("bigZ booking bot started")
	b.Start(ctx)
}

func auditPath(dbPath string) string {
	if strings.HasSuffix(dbPath, ".db") {
		return strings.TrimSuffix(dbPath, ".db") + "_audit.db"
	}
	return dbPath + "_audit"
}

// registerAuditSubscribers records every submission outcome into the audit
// trail.
func registerAuditSubscribers(bus *events.EventBus, auditSvc *audit.Service, logger *zerolog.Logger) {
	record := func(success bool) events.EventHandler {
		return func(ev events.Event) error {
			userID, _ := strconv.ParseInt(ev.Payload["user_id"], 10, 64)
			roomID, _ := strconv.ParseInt(ev.Payload["room_id"], 10, 64)
			entry := audit.Entry{
				RequestID: uuid.New().String(),
				UserID:    userID,
				RoomID:    roomID,
				RoomName:  ev.Payload["room_name"],
				Date:      ev.Payload["date"],
				Slots:     ev.Payload["slots"],
				Success:   success,
				Message:   ev.Payload["message"],
				CreatedAt: ev.CreatedAt,
			}
			if err := auditSvc.Record(context.Background(), entry); err != nil {
				logger.Error().Err(err).Msg("audit record failed")
			}
			return nil
		}
	}
	bus.Subscribe(events.TypeBookingSubmitted, record(true))
	bus.Subscribe(events.TypeBookingFailed, record(false))
}

func startHealthServer(ctx context.Context, port int, store *persistence.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
