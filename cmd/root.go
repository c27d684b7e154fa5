package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ragbench/genread/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "genread",
	Short: "Generate-then-read pipeline for knowledge-intensive benchmarks",
	Long:  "Generates background passages with a completion model, retrieves the encyclopedia pages they link to, and prompts again with the retrieved background to produce final answers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
