// Command agentstream serves, records and replays agent activity streams.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Harsha-Reddy21/AI-Onboarding/session"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "agentstream",
	Short: "Agent activity stream server",
	Long: `agentstream opens document, video and chat streams on the agent
service, folds their events into step timelines, records every frame,
and serves live timelines over WebSocket, HTTP and MCP.`,
	SilenceUsage: true,
}

var dataDir string

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: $DATA_DIR or ~/.activity)")
	rootCmd.Version = version
	rootCmd.AddCommand(newServeCmd(), newReplayCmd(), newMCPCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// resolveDataDir returns the data directory from flags, env or the default.
func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".activity"), nil
}

// openStore uses Postgres when DATABASE_URL is set and the file store otherwise.
func openStore(ctx context.Context, dir string) (session.Store, func(), error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		pg, err := session.OpenPGStore(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, pg.Close, nil
	}

	fs, err := session.NewFileStore(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open file store: %w", err)
	}
	return fs, func() {}, nil
}
