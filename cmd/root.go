package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/sqlbak/internal/logger"
)

// EnvFile is the optional dotenv file seeding the configuration.
var (
	EnvFile string

	// rootCmd is the base command for sqlbak.
	rootCmd = &cobra.Command{
		Use:   "sqlbak",
		Short: "Scheduled MySQL backup agent for S3-compatible storage",
		Long: `sqlbak dumps a set of MySQL databases, compresses and uploads each
dump to S3-compatible object storage, and prunes older backups beyond a
retention count. Configuration comes from the environment, optionally
seeded from a dotenv file.`,
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&EnvFile, "env-file", "e", "", "path to a dotenv file with configuration")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(scheduleCmd)
}
