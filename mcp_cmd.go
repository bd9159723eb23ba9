package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Harsha-Reddy21/AI-Onboarding/logger"
	"github.com/Harsha-Reddy21/AI-Onboarding/mcp"
	"github.com/Harsha-Reddy21/AI-Onboarding/settings"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve recorded sessions as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDataDir()
			if err != nil {
				return err
			}
			// stdout carries the protocol
			logger.Init(logger.Config{DataDir: dir, Stderr: true})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, dir)
			if err != nil {
				return err
			}
			defer closeStore()

			settingsStore, err := settings.NewStore(dir)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			slog.Info("mcp server starting", "dataDir", dir)
			return mcp.NewServer(store, settingsStore.ConfigFor, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
