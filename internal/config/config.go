package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kebairia/sqlbak/internal/naming"
)

// ErrLoadConfig indicates a failure to read the environment configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config is the flat environment-driven configuration for one run. It is
// loaded once per invocation and immutable for the run's duration.
type Config struct {
	MySQLHost      string `mapstructure:"mysql_host"`
	MySQLPort      string `mapstructure:"mysql_port"`
	MySQLUser      string `mapstructure:"mysql_user"`
	MySQLPassword  string `mapstructure:"mysql_password"`
	MySQLDatabases string `mapstructure:"mysql_databases"`

	NamePattern string `mapstructure:"backup_name_pattern"`

	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Path     string `mapstructure:"s3_path"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	AWSAccess  string `mapstructure:"aws_access_key_id"`
	AWSSecret  string `mapstructure:"aws_secret_access_key"`
	AWSRegion  string `mapstructure:"aws_default_region"`

	IntervalHours  int `mapstructure:"backup_interval_hours"`
	RetentionCount int `mapstructure:"backup_retention_count"`

	WebhookURL string `mapstructure:"notify_webhook_url"`
	NotifyType string `mapstructure:"notify_type"`

	LogFile string `mapstructure:"log_file"`

	// Optional Vault credential source; overrides MySQLUser/MySQLPassword
	// when both are set. Authentication is the VAULT_TOKEN env var, or
	// AppRole login when role ID and name are both configured.
	VaultAddr      string `mapstructure:"vault_addr"`
	VaultRoleID    string `mapstructure:"vault_role_id"`
	VaultRoleName  string `mapstructure:"vault_role_name"`
	MySQLVaultPath string `mapstructure:"mysql_vault_path"`
}

// envKeys maps the mapstructure keys to their environment variable names.
var envKeys = map[string]string{
	"mysql_host":             "MYSQL_HOST",
	"mysql_port":             "MYSQL_PORT",
	"mysql_user":             "MYSQL_USER",
	"mysql_password":         "MYSQL_PASSWORD",
	"mysql_databases":        "MYSQL_DATABASES",
	"backup_name_pattern":    "BACKUP_NAME_PATTERN",
	"s3_bucket":              "S3_BUCKET",
	"s3_path":                "S3_PATH",
	"s3_endpoint":            "S3_ENDPOINT",
	"aws_access_key_id":      "AWS_ACCESS_KEY_ID",
	"aws_secret_access_key":  "AWS_SECRET_ACCESS_KEY",
	"aws_default_region":     "AWS_DEFAULT_REGION",
	"backup_interval_hours":  "BACKUP_INTERVAL_HOURS",
	"backup_retention_count": "BACKUP_RETENTION_COUNT",
	"notify_webhook_url":     "NOTIFY_WEBHOOK_URL",
	"notify_type":            "NOTIFY_TYPE",
	"log_file":               "LOG_FILE",
	"vault_addr":             "VAULT_ADDR",
	"vault_role_id":          "VAULT_ROLE_ID",
	"vault_role_name":        "VAULT_ROLE_NAME",
	"mysql_vault_path":       "MYSQL_VAULT_PATH",
}

// Load reads the configuration from the process environment, optionally
// seeded from a dotenv file at envFile (ignored when absent), and validates
// it. Explicit environment variables win over dotenv entries.
func (c *Config) Load(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: read env file %s: %v", ErrLoadConfig, envFile, err)
		}
	}

	v := viper.New()
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("%w: bind %s: %v", ErrLoadConfig, env, err)
		}
	}
	v.SetDefault("mysql_host", "localhost")
	v.SetDefault("mysql_port", "3306")
	v.SetDefault("mysql_databases", "ALL")
	v.SetDefault("backup_name_pattern", naming.DefaultPattern)
	v.SetDefault("aws_default_region", "us-east-1")
	v.SetDefault("backup_interval_hours", 24)
	v.SetDefault("backup_retention_count", 7)
	v.SetDefault("notify_type", "slack")

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.validate()
}

// validate rejects configurations that cannot produce a meaningful run.
func (c *Config) validate() error {
	if c.S3Bucket == "" {
		return fmt.Errorf("%w: S3_BUCKET is required", ErrValidateConfig)
	}
	if c.MySQLUser == "" && c.MySQLVaultPath == "" {
		return fmt.Errorf("%w: MYSQL_USER or MYSQL_VAULT_PATH is required", ErrValidateConfig)
	}
	if c.RetentionCount < 0 {
		return fmt.Errorf("%w: BACKUP_RETENTION_COUNT must be >= 0", ErrValidateConfig)
	}
	if c.IntervalHours <= 0 {
		return fmt.Errorf("%w: BACKUP_INTERVAL_HOURS must be > 0", ErrValidateConfig)
	}
	if c.NotifyType != "slack" && c.NotifyType != "discord" {
		return fmt.Errorf("%w: NOTIFY_TYPE must be slack or discord", ErrValidateConfig)
	}
	return nil
}
