// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DB_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file whenever it changes on disk and hands the
// freshly unmarshalled Config to onReload. Used to reload program rules and
// SLA tables without restarting the engine; infrastructure endpoints are not
// re-dialed.
func Watch(onReload func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return
		}
		applyDefaults(&cfg)
		if err := validateConfig(&cfg); err != nil {
			return
		}
		onReload(&cfg)
	})
	viper.WatchConfig()
}

// Load .env from multiple possible locations
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Environment variable expansion for ${VAR} placeholders in yaml values
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Resolver.Keycloak.ClientSecret == "" {
		if val := os.Getenv("KEYCLOAK_CLIENT_SECRET"); val != "" {
			cfg.Resolver.Keycloak.ClientSecret = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Elasticsearch URL fallback
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Workflow defaults
	if cfg.Workflow.ChangesPolicy == "" {
		cfg.Workflow.ChangesPolicy = "auto_reject"
	}
	if cfg.Workflow.ChangesDeadlineDays == 0 {
		cfg.Workflow.ChangesDeadlineDays = 14
	}
	if cfg.Workflow.EscalationGraceDays == 0 {
		cfg.Workflow.EscalationGraceDays = 7
	}
	if cfg.Workflow.SweepSchedule == "" {
		cfg.Workflow.SweepSchedule = "0 0 * * * *" // hourly, with seconds field
	}
	for name, kind := range cfg.Workflow.Kinds {
		for i := range kind.Levels {
			if kind.Levels[i].SLADays == 0 {
				kind.Levels[i].SLADays = 7
			}
		}
		cfg.Workflow.Kinds[name] = kind
	}

	// Eligibility rule defaults mirror the program circular's point table.
	if cfg.Eligibility.PassThreshold == 0 {
		cfg.Eligibility.PassThreshold = 50
	}
	if cfg.Eligibility.TrackMatchBonus == 0 {
		cfg.Eligibility.TrackMatchBonus = 50
	}
	if cfg.Eligibility.MissingDocumentPenalty == 0 {
		cfg.Eligibility.MissingDocumentPenalty = 40
	}
	if cfg.Eligibility.AgePenalty == 0 {
		cfg.Eligibility.AgePenalty = 30
	}
	if cfg.Eligibility.LateSubmissionPenalty == 0 {
		cfg.Eligibility.LateSubmissionPenalty = 50
	}
	if cfg.Eligibility.CapacityPenalty == 0 {
		cfg.Eligibility.CapacityPenalty = 50
	}
	if cfg.Eligibility.MinAge == 0 {
		cfg.Eligibility.MinAge = 18
	}
	if cfg.Eligibility.MaxAge == 0 {
		cfg.Eligibility.MaxAge = 70
	}

	// Priority defaults
	if cfg.Priority.SponsoredTrackBonus == 0 {
		cfg.Priority.SponsoredTrackBonus = 50
	}
	if cfg.Priority.VerificationBonus == 0 {
		cfg.Priority.VerificationBonus = 10
	}
	if cfg.Priority.WaitBonusPerDay == 0 {
		cfg.Priority.WaitBonusPerDay = 1
	}
	if cfg.Priority.WaitBonusCap == 0 {
		cfg.Priority.WaitBonusCap = 30
	}
	if cfg.Priority.UrgencyWindowHours == 0 {
		cfg.Priority.UrgencyWindowHours = 48
	}
	if cfg.Priority.UrgencyBonus == 0 {
		cfg.Priority.UrgencyBonus = 20
	}
	if cfg.Priority.BreachBonus == 0 {
		cfg.Priority.BreachBonus = 40
	}

	// Resolver defaults
	if cfg.Resolver.Mode == "" {
		cfg.Resolver.Mode = "static"
	}
	if cfg.Resolver.CacheTTL == 0 {
		cfg.Resolver.CacheTTL = 300
	}

	// Audit defaults
	if cfg.Audit.Index == "" {
		cfg.Audit.Index = "review-actions"
	}

	// Metrics defaults
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9102"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Workflow.Kinds) == 0 {
		return fmt.Errorf("workflow.kinds must configure at least one application kind")
	}
	for name, kind := range cfg.Workflow.Kinds {
		if len(kind.Levels) == 0 {
			return fmt.Errorf("workflow.kinds.%s has no review levels", name)
		}
		for i, lvl := range kind.Levels {
			if lvl.RequiredRole == "" {
				return fmt.Errorf("workflow.kinds.%s level %d has no required_role", name, i+1)
			}
		}
	}

	switch cfg.Workflow.ChangesPolicy {
	case "auto_reject", "escalate":
	default:
		return fmt.Errorf("workflow.changes_policy must be auto_reject or escalate, got %q", cfg.Workflow.ChangesPolicy)
	}

	if cfg.Eligibility.SubmissionDeadline != "" {
		if _, err := time.Parse(time.RFC3339, cfg.Eligibility.SubmissionDeadline); err != nil {
			return fmt.Errorf("eligibility.submission_deadline is not RFC3339: %w", err)
		}
	}

	switch cfg.Resolver.Mode {
	case "static", "keycloak":
	default:
		return fmt.Errorf("resolver.mode must be static or keycloak, got %q", cfg.Resolver.Mode)
	}
	if cfg.Resolver.Mode == "keycloak" && cfg.Resolver.Keycloak.URL == "" {
		return fmt.Errorf("resolver.keycloak.url is required in keycloak mode")
	}

	return nil
}

// GetDuration converts seconds from config to time.Duration
func GetDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
