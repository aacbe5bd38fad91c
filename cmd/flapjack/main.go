package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flapjack/flapjack/internal/app"
	"github.com/flapjack/flapjack/internal/config"
	"github.com/flapjack/flapjack/pkg/keystore"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "reset-admin-key" {
		if err := resetAdminKey(); err != nil {
			slog.Error("reset-admin-key failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func resetAdminKey() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	newKey, err := keystore.ResetAdminKey(cfg.DataDir)
	if err != nil {
		return err
	}
	fmt.Printf("admin key rotated, new key written to %s/.admin_key:\n%s\n", cfg.DataDir, newKey)
	return nil
}
