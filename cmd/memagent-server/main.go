// Command memagent-server serves memory agent conversations over HTTP.
//
//	POST   /chat                      {"session_id"?, "message"}
//	GET    /sessions/{id}/transcript  live conversation
//	DELETE /sessions/{id}             end a session (archived when a store is configured)
//	GET    /transcripts[?limit=n]     archived conversations, newest first
//	GET    /transcripts/{id}
//	GET    /health
//
// Every session gets its own agent over the shared memory root. Sessions
// idle longer than server.session_ttl are archived and dropped.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/internal/app"
	"github.com/nevindra/memagent/internal/config"
	"github.com/nevindra/memagent/observer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "memagent-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("MEMAGENT_CONFIG"), "path to memagent.toml")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	logger := a.Logger

	// Fail at startup rather than on the first request when the root or
	// prompt is unusable.
	if _, err := a.NewAgent(); err != nil {
		return err
	}

	sessions := newSessionManager(func() (*memagent.Agent, observer.Chatter, error) {
		agent, err := a.NewAgent()
		if err != nil {
			return nil, nil, err
		}
		return agent, a.Chatter(agent), nil
	}, cfg.SessionTTL(), logger)
	if a.Store != nil {
		sessions.archive = func(ctx context.Context, agent *memagent.Agent) {
			if len(agent.History()) <= 1 {
				return
			}
			if err := agent.Archive(ctx, a.Store); err != nil {
				logger.Error("archive conversation", "session_id", agent.ID(), "error", err)
			}
		}
	}
	sessions.start(cfg.CleanupInterval())

	maxConcurrent := cfg.Server.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	h := &handler{
		sessions: sessions,
		store:    a.Store,
		sem:      make(chan struct{}, maxConcurrent),
		logger:   logger,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      h.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "root", cfg.Agent.Root)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	sessions.close(shutCtx)
	logger.Info("stopped")
	return nil
}
