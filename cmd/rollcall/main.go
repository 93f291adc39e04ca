package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	// Embedded zone database so TIMEZONE resolves on minimal images.
	_ "time/tzdata"

	"github.com/Kerhoff/rollcall/internal/api"
	"github.com/Kerhoff/rollcall/internal/config"
	"github.com/Kerhoff/rollcall/internal/evidence"
	"github.com/Kerhoff/rollcall/internal/metrics"
	"github.com/Kerhoff/rollcall/internal/repository"
	"github.com/Kerhoff/rollcall/internal/repository/bolt"
	"github.com/Kerhoff/rollcall/internal/repository/memory"
	"github.com/Kerhoff/rollcall/internal/repository/postgres"
	"github.com/Kerhoff/rollcall/internal/repository/sqlite"
	"github.com/Kerhoff/rollcall/internal/repository/xlsx"
	"github.com/Kerhoff/rollcall/internal/service"
	"github.com/Kerhoff/rollcall/internal/telegram"
	"github.com/Kerhoff/rollcall/pkg/logger"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file read before the environment")
	groupsFile := pflag.String("groups", "", "groups file (overrides GROUPS_FILE)")
	port := pflag.String("port", "", "HTTP port (overrides PORT)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *groupsFile != "" {
		cfg.GroupsFile = *groupsFile
	}
	if *port != "" {
		cfg.Port = *port
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting rollcall...")

	if err := run(cfg, l); err != nil {
		l.Fatalf("rollcall failed: %v", err)
	}
	l.Info("rollcall stopped")
}

func run(cfg *config.Config, l *logrus.Logger) error {
	groupsCfg, err := config.LoadGroups(cfg.GroupsFile)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var closers []interface{ Close() error }
	defer func() {
		if err := config.CloseAll(closers...); err != nil {
			l.Errorf("Failed to close stores: %v", err)
		}
	}()

	// Ledger store
	var ledgers repository.LedgerRepository
	switch cfg.LedgerStore {
	case config.LedgerStoreBolt:
		store, err := bolt.Open(cfg.BoltPath())
		if err != nil {
			return fmt.Errorf("failed to open ledger database: %w", err)
		}
		closers = append(closers, store)
		ledgers = store
	default:
		ledgers = xlsx.NewLedgerRepository(cfg.LedgerDir(), cfg.Location())
	}

	// Hall pass store
	var passes repository.PassRepository
	switch cfg.PassStore {
	case config.PassStoreMemory:
		l.Warn("Hall passes are kept in memory and will not survive a restart")
		passes = memory.NewHallPassRepository()
	default:
		db, err := config.NewDatabase(cfg.PassStore, cfg.PassDSN(), l)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db)

		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		if cfg.PassStore == config.PassStorePostgres {
			passes = postgres.NewHallPassRepository(db.DB)
		} else {
			passes = sqlite.NewHallPassRepository(db.DB)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Service layer
	groups := service.NewGroups(groupsCfg.Groups, groupsCfg.Default)
	svc := service.New(l, groups, xlsx.NewRosterRepository(cfg.RosterDir()), ledgers, passes, service.Settings{
		Location:           cfg.Location(),
		DefaultPassMinutes: cfg.DefaultPassMinutes,
		Metrics:            m,
	})

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Telegram bot
	var onOverdue service.OverdueCallback
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, l)
		if err != nil {
			return fmt.Errorf("failed to create Telegram bot: %w", err)
		}
		bot.Register(svc)
		onOverdue = bot.OverdueAlerts(svc)

		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	} else {
		l.Info("TELEGRAM_TOKEN not set, bot disabled")
	}

	// Start overdue sweeper
	if cfg.OverdueSweepInterval > 0 {
		go svc.Sweeper.Run(ctx, cfg.OverdueSweepInterval, onOverdue)
	}

	if cfg.AdminPassword == "" {
		l.Warn("ADMIN_PASSWORD not set, admin routes are disabled")
	}

	apiServer := api.NewServer(svc, evidence.NewStore(cfg.PhotosDir()), cfg.AdminPassword, l)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{httpServer}
	if addr, ok := cfg.MetricsAddr(); ok {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metrics.Handler(registry))
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	} else {
		l.Info("PROMETHEUS_PORT disabled, metrics server not started")
	}

	serveErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			l.Infof("HTTP server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	l.Info("rollcall started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		l.Info("Received shutdown signal...")
	case runErr = <-serveErr:
		cancel()
	}

	l.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Errorf("Failed to shut down %s: %v", srv.Addr, err)
		}
	}
	return runErr
}
