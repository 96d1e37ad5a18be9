package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"machine-monitor-backend/config"
	"machine-monitor-backend/internal/db"
	"machine-monitor-backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./config/config.yaml"
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "monitord",
		Short:         "Industrial asset monitor backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the YAML configuration file")

	load := func(cmd *cobra.Command) (*config.Config, error) {
		cfg, err := config.Load(cmd.Context(), configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration from %s: %w", configPath, err)
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Format)
		return cfg, nil
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newValidateCommand(load))
	cmd.AddCommand(newSeedCommand(load))
	return cmd
}

type loader func(cmd *cobra.Command) (*config.Config, error)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, push channel and simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newValidateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			log.Info().
				Int("port", cfg.Server.Port).
				Str("db_driver", cfg.Database.Driver).
				Dur("interval", cfg.Simulator.Interval).
				Float64("fault_probability", cfg.Simulator.FaultProbability).
				Bool("push", cfg.Push.Enabled()).
				Bool("nats", cfg.NATS.URL != "").
				Msg("configuration is valid")
			return nil
		},
	}
}

func newSeedCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and insert the reference machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			gormDB, err := db.Init(&cfg.Database, logging.GormLevel(zerolog.GlobalLevel()))
			if err != nil {
				return err
			}
			defer db.Close(gormDB)

			if err := db.Seed(cmd.Context(), gormDB); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}
			log.Info().Int("machines", len(db.ReferenceMachines)).Msg("reference machines seeded")
			return nil
		},
	}
}
