// Dispatchd is the transactional core of a field-service dispatch platform:
// a ticket lifecycle engine, single-taker job assignment, a deterministic
// payout ledger, a lead-ingest pipeline, and a role-based permission gate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fieldops/dispatchcore/access"
	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/finance"
	"github.com/fieldops/dispatchcore/internal/db"
	"github.com/fieldops/dispatchcore/internal/web"
	"github.com/fieldops/dispatchcore/lead"
	"github.com/fieldops/dispatchcore/link"
	"github.com/fieldops/dispatchcore/ticket"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	var (
		dbPath      = flag.String("db", "dispatch.db", "SQLite database path")
		webhookPort = flag.String("port", "8080", "Webhook/API server port")
		verbose     = flag.Bool("verbose", false, "Verbose (text handler) logging")
		showVersion = flag.Bool("version", false, "Show version")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("dispatchd %s (commit: %s)\n", version, gitCommit)
		os.Exit(0)
	}

	logger := newLogger(*verbose)

	databaseURL := os.Getenv("DISPATCH_DATABASE_URL")
	if databaseURL == "" {
		databaseURL = *dbPath
	}
	webhookSecret := os.Getenv("DISPATCH_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Warn("DISPATCH_WEBHOOK_SECRET not set; lead webhook will reject all requests")
	}

	database, err := db.Open(databaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	store := db.NewStore(database)

	auditRecorder := auditlog.New(store, logger)
	ticketEngine := ticket.New(store, auditRecorder, time.Now)
	leadEngine := lead.New(store, auditRecorder, ticketEngine, time.Now)
	linkEngine := link.New(store, auditRecorder, time.Now)
	financeEngine := finance.New(store)
	accessFilter := access.New(store)

	_ = parseSysAdminIDs(os.Getenv("DISPATCH_SYS_ADMIN_IDS"))

	server := web.NewServer(store, logger, webhookSecret, ticketEngine, leadEngine, financeEngine, linkEngine, accessFilter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + *webhookPort)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}
}

func newLogger(verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// parseSysAdminIDs parses DISPATCH_SYS_ADMIN_IDS's comma-separated list of
// privileged user IDs per SPEC_FULL.md's configuration surface.
func parseSysAdminIDs(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
