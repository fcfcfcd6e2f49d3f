package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/waggle-io/waggle/internal/analytics"
	apiPkg "github.com/waggle-io/waggle/internal/api"
	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/internal/config"
	"github.com/waggle-io/waggle/internal/connector"
	"github.com/waggle-io/waggle/internal/connector/slackconn"
	"github.com/waggle-io/waggle/internal/connector/telegram"
	"github.com/waggle-io/waggle/internal/connector/webhook"
	"github.com/waggle-io/waggle/internal/logbuf"
	"github.com/waggle-io/waggle/internal/notify"
	"github.com/waggle-io/waggle/internal/scheduler"
	"github.com/waggle-io/waggle/internal/thread"
	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/internal/workflow"
	"github.com/waggle-io/waggle/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("waggled starting", "swarm_id", cfg.Swarm.ID)

	// 1. Open stores
	os.MkdirAll(cfg.Swarm.DataDir, 0o755)
	store, err := ticket.NewSQLiteStore(cfg.Swarm.DataDir + "/tickets.db")
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	threads, err := thread.NewSQLiteService(cfg.Swarm.DataDir + "/threads.db")
	if err != nil {
		logger.Error("failed to open thread service", "error", err)
		os.Exit(1)
	}
	defer threads.Close()

	// 2. Event bus + notification router
	b := bus.New(logger.With("component", "bus"))
	defer b.Close()

	router := notify.New(b, logger.With("component", "notify"))
	for _, sub := range cfg.Subscriptions {
		sink := &logSink{logger: logger.With("component", "notify-sink", "target", sub.Target)}
		switch sub.Kind {
		case "human":
			router.RegisterHuman(sub.Target, sink, sub.EventTypes()...)
		default:
			router.RegisterAgent(sub.Target, sink, sub.EventTypes()...)
		}
		logger.Info("subscription registered", "target", sub.Target, "kind", sub.Kind, "events", sub.Events)
	}

	// 3. Escalation channels
	var channels []connector.Escalator
	if c := cfg.Connectors.Slack; c != nil {
		sl, err := slackconn.New(slackconn.Config{BotToken: c.BotToken, Channel: c.Channel},
			logger.With("connector", "slack"))
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		channels = append(channels, sl)
	}
	if c := cfg.Connectors.Telegram; c != nil {
		tg, err := telegram.New(telegram.Config{Token: c.Token, ChatID: c.ChatID},
			logger.With("connector", "telegram"))
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		channels = append(channels, tg)
	}
	if c := cfg.Connectors.Webhook; c != nil {
		wh, err := webhook.New(webhook.Config{URL: c.URL, Secret: c.Secret},
			logger.With("connector", "webhook"))
		if err != nil {
			logger.Error("failed to init webhook connector", "error", err)
			os.Exit(1)
		}
		channels = append(channels, wh)
	}

	// 4. Workflow orchestrator + analytics
	var opts []workflow.Option
	if len(channels) > 0 {
		opts = append(opts, workflow.WithEscalator(connector.NewMulti(logger.With("component", "escalation"), channels...)))
	}
	wf := workflow.New(store, b, threads, logger.With("component", "workflow"), opts...)
	stats := analytics.New(store)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Deadline sweeper
	sweeper := scheduler.New(stats, b, cfg.Scheduler.HorizonDays, logger.With("component", "scheduler"))
	if err := sweeper.Schedule(cfg.Scheduler.SweepSchedule); err != nil {
		logger.Error("failed to schedule deadline sweep", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sweeper.Start(ctx) })

	// 6. API server
	apiSrv := apiPkg.NewServer(wf, stats, store, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)
	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("waggled stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// logSink records envelope delivery for targets without a live transport.
// Consumers read their notifications from the bus or over the API; the sink
// is the audit edge.
type logSink struct {
	logger *slog.Logger
}

func (s *logSink) Deliver(n protocol.Event) error {
	wrapped := ""
	if n.Wrapped != nil {
		wrapped = string(n.Wrapped.Type)
	}
	s.logger.Info("notification delivered",
		"envelope", n.ID,
		"target", n.Target,
		"event", wrapped,
		"urgency", n.Urgency,
		"ticket", n.TicketID,
	)
	return nil
}
