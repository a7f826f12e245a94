package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/sqlbak/internal/config"
	"github.com/kebairia/sqlbak/internal/logger"
	"github.com/kebairia/sqlbak/internal/operations"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run one backup cycle across all configured databases",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runOnce())
	},
}

// runOnce loads configuration, initializes the logger and executes one full
// cycle, mapping the result to a process exit code.
func runOnce() int {
	var cfg config.Config
	if err := cfg.Load(EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	log, err := logger.Init(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	defer logger.Cleanup()

	return runCycle(cfg, log)
}

// runCycle executes one backup cycle with an already-initialized logger and
// maps its result to a process exit code: 0 when every database succeeded
// or the run was skipped because another run is active, 1 on any
// per-database failure or fatal error.
func runCycle(cfg config.Config, log logger.Logger) int {
	ctx := context.Background()
	coordinator, err := operations.Build(ctx, cfg, log)
	if err != nil {
		log.Error("backup run aborted", "error", err.Error())
		return 1
	}

	summary, err := coordinator.Run(ctx)
	switch {
	case errors.Is(err, operations.ErrRunActive):
		return 0
	case err != nil:
		log.Error("backup run aborted", "error", err.Error())
		return 1
	case summary.Failed > 0:
		return 1
	}
	return 0
}
