// Command mirror-archiver consumes the audit mirror topic and appends every
// entry to a local JSONL archive. The archive is the independent copy the
// chain verifier can be compared against when the primary store is suspect.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/trustplane/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("mirror archiver failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	archivePath := os.Getenv("AUDIT_ARCHIVE_PATH")
	if archivePath == "" {
		archivePath = "audit-mirror.jsonl"
	}

	// Append-only, like the ledger it shadows.
	archive, err := os.OpenFile(archivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	consumer := infra.NewKafkaConsumer(cfg.KafkaBrokers, cfg.AuditMirrorTopic, "audit-mirror-archiver", cfg.KafkaEnabled, logger)
	if !consumer.Enabled() {
		return fmt.Errorf("kafka is disabled; nothing to archive")
	}
	defer consumer.Close()

	logger.Info("mirror archiver starting", "topic", cfg.AuditMirrorTopic, "archive", archivePath)

	for {
		msg, err := consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("mirror archiver shutting down")
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if _, err := archive.Write(append(msg.Value, '\n')); err != nil {
			return fmt.Errorf("append to archive: %w", err)
		}
		logger.Info("archived audit entry", "event_id", string(msg.Key), "offset", msg.Offset)
	}
}
