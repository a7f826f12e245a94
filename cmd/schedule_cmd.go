package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/sqlbak/internal/config"
	"github.com/kebairia/sqlbak/internal/logger"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run backup cycles on the configured interval",
	Long: `schedule runs one backup cycle immediately and then repeats every
BACKUP_INTERVAL_HOURS. Each cycle acquires the run lock independently, so an
overlapping invocation from outside still skips cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg config.Config
		if err := cfg.Load(EnvFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// One logger for the scheduler's whole lifetime; every cycle logs
		// through the same LOG_FILE handle.
		log, err := logger.Init(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer logger.Cleanup()

		interval := time.Duration(cfg.IntervalHours) * time.Hour
		log.Info("scheduler started", "interval", interval.String())

		// Cycle failures are reported per run through the log and the
		// notifier; the scheduler itself keeps going.
		if code := runCycle(cfg, log); code != 0 {
			log.Warn("backup cycle finished with failures", "exit_code", code)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if code := runCycle(cfg, log); code != 0 {
				log.Warn("backup cycle finished with failures", "exit_code", code)
			}
		}
		return nil
	},
}
