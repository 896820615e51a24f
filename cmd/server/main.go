package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lobby/internal/api"
	"lobby/internal/clock"
	"lobby/internal/config"
	"lobby/internal/ratelimit"
	"lobby/internal/scheduler"
	"lobby/internal/state"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting radio coordination service", "port", cfg.Port)

	if cfg.RobloxServerKey == "" {
		slog.Warn("ROBLOX_SERVER_KEY is unset: all game-server authenticated routes will reject every call")
	}
	if cfg.WebTokenSecret == "" {
		slog.Warn("WEB_TOKEN_SECRET is unset: token minting/verification is disabled (token_disabled)")
	}

	sysClock := clock.System{}
	s := state.New(state.Config{
		SessionTTLMS:    cfg.SessionTTLMS,
		RadioTTLMS:      cfg.RadioTTLMS,
		StateTTLMS:      cfg.StateTTLMS,
		StateMinGapMS:   cfg.StateMinGapMS,
		WebTokenTTLMS:   cfg.WebTokenTTLMS,
		JoinDedupMS:     cfg.JoinDedupMS,
		MuteDedupMS:     cfg.MuteDedupMS,
		PushHeartbeatMS: cfg.PushHeartbeatMS,
		MaxSSEPerUser:   cfg.MaxSSEPerUser,
		MaxSSEPerIP:     cfg.MaxSSEPerIP,
	}, sysClock, cfg.WebTokenSecret, ratelimit.DefaultQuotas())

	revocationCutoff := cfg.WebTokenTTLMS
	if tenMinutes := int64(10 * time.Minute / time.Millisecond); revocationCutoff < tenMinutes {
		revocationCutoff = tenMinutes
	}

	sched := scheduler.New(sysClock.NowMS,
		scheduler.Task{Name: "pairing_gc", Interval: 30 * time.Second, Run: s.Pairing.GC},
		scheduler.Task{Name: "event_gc", Interval: 60 * time.Second, Run: func(now int64) int { return s.Events.GC(now, cfg.RadioTTLMS) }},
		scheduler.Task{Name: "radiostate_gc", Interval: 5 * time.Second, Run: func(now int64) int { return s.RadioState.GC(now, cfg.StateTTLMS) }},
		scheduler.Task{Name: "revocation_gc", Interval: 60 * time.Second, Run: func(now int64) int { return s.Revocation.GC(now - revocationCutoff) }},
		scheduler.Task{Name: "ratelimit_gc", Interval: 60 * time.Second, Run: s.RateLimit.Sweep},
	)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	go func() {
		if err := sched.Run(schedCtx); err != nil {
			slog.Error("scheduler exited with error", "error", err)
		}
	}()

	server := api.NewServer(cfg, s)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	schedCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
