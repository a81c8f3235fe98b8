// Command audit-verify replays the audit chain offline and reports every
// integrity violation. Exit code 1 means the chain failed verification.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/infra"
	"github.com/trustplane/platform/internal/repository"
)

func main() {
	eventID := flag.String("event", "", "verify a single entry by event id instead of the full chain")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	report, err := run(logger, *eventID)
	if err != nil {
		logger.Error("verification failed to run", "error", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Valid {
		os.Exit(1)
	}
}

func run(logger *slog.Logger, eventID string) (*audit.Report, error) {
	ctx := context.Background()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.AuditSigningKey == "" {
		return nil, fmt.Errorf("AUDIT_SIGNING_KEY is required: signatures cannot be checked without it")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg.AuditDSN())
	if err != nil {
		return nil, fmt.Errorf("connect audit store: %w", err)
	}
	defer pool.Close()

	store := repository.NewAuditStore(pool)
	ledger, err := audit.NewLedger(ctx, store, []byte(cfg.AuditSigningKey), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return ledger.VerifyChain(ctx, eventID)
}
