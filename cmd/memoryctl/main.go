package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memory-filter/internal/config"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "memoryctl",
		Short:         "Operator tooling for the memory filter and its Memory Service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "memoryctl.toml", "optional TOML file overriding environment settings")

	rootCmd.AddCommand(
		newPairsCmd(a),
		newFetchCmd(a),
		newSaveCmd(a),
		newInletCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ApplyFile(a.configPath); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
