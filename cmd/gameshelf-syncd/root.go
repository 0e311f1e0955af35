package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
	"github.com/thetigeregg/game-shelf-sub002/shelfsync"
)

const version = "0.1.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:          "gameshelf-syncd",
	Short:        "GameShelf offline-first sync agent",
	Long:         "gameshelf-syncd keeps the local GameShelf database in sync with the remote sync service across intermittent connectivity.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml or ~/.gameshelf/config.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gameshelf-syncd v%s\n", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogFile, cfg.LogLevel)

		store, err := shelfstore.Open(cfg.DBPath)
		if err != nil {
			// Migration failures land here and abort startup.
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		store.SetLogger(logger)

		syncCfg := shelfsync.DefaultConfig(cfg.ServerURL)
		syncCfg.SyncInterval = cfg.SyncInterval
		syncer := shelfsync.NewSyncer(store, syncCfg, nil, logger)
		coord := shelfsync.NewCoordinator(syncer, nil, cfg.SyncInterval)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("sync agent started",
			"db", cfg.DBPath, "server", cfg.ServerURL, "interval", cfg.SyncInterval.String())
		coord.RequestSync()
		coord.Run(ctx)
		logger.Info("sync agent stopped")
		return nil
	},
}
