// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Workflow      WorkflowConfig     `mapstructure:"workflow"`
	Eligibility   EligibilityConfig  `mapstructure:"eligibility"`
	Priority      PriorityConfig     `mapstructure:"priority"`
	Resolver      ResolverConfig     `mapstructure:"resolver"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Audit         AuditConfig        `mapstructure:"audit"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Workflow Configuration ---

// LevelSpec configures one jurisdictional tier of a kind's approval chain.
type LevelSpec struct {
	Name         string `mapstructure:"name"`
	RequiredRole string `mapstructure:"required_role"`
	SLADays      int    `mapstructure:"sla_days"`
}

// KindSpec configures the level chain for one application kind.
type KindSpec struct {
	Levels []LevelSpec `mapstructure:"levels"`
}

// WorkflowConfig holds the state machine policy knobs.
type WorkflowConfig struct {
	Kinds map[string]KindSpec `mapstructure:"kinds"`
	// ChangesPolicy decides what happens when a changes-requested deadline
	// elapses: "auto_reject" or "escalate".
	ChangesPolicy       string `mapstructure:"changes_policy"`
	ChangesDeadlineDays int    `mapstructure:"changes_deadline_days"`
	EscalationGraceDays int    `mapstructure:"escalation_grace_days"`
	SweepSchedule       string `mapstructure:"sweep_schedule"` // cron spec
}

// --- Eligibility Configuration ---

// EligibilityConfig carries the program rule table. It is reloadable at
// runtime via Watch; the engine reads it through a rules provider, never from
// a cached copy.
type EligibilityConfig struct {
	PassThreshold          int      `mapstructure:"pass_threshold"`
	TrackMatchBonus        int      `mapstructure:"track_match_bonus"`
	MissingDocumentPenalty int      `mapstructure:"missing_document_penalty"`
	AgePenalty             int      `mapstructure:"age_penalty"`
	LateSubmissionPenalty  int      `mapstructure:"late_submission_penalty"`
	CapacityPenalty        int      `mapstructure:"capacity_penalty"`
	MinAge                 int      `mapstructure:"min_age"`
	MaxAge                 int      `mapstructure:"max_age"`
	SupportedTracks        []string `mapstructure:"supported_tracks"`
	FullTracks             []string `mapstructure:"full_tracks"`
	RequiredDocuments      []string `mapstructure:"required_documents"`
	SubmissionDeadline     string   `mapstructure:"submission_deadline"` // RFC3339, empty = no deadline
}

// --- Priority Configuration ---
type PriorityConfig struct {
	SponsoredTrackBonus int      `mapstructure:"sponsored_track_bonus"`
	SponsoredTracks     []string `mapstructure:"sponsored_tracks"`
	VerificationBonus   int      `mapstructure:"verification_bonus"`
	WaitBonusPerDay     int      `mapstructure:"wait_bonus_per_day"`
	WaitBonusCap        int      `mapstructure:"wait_bonus_cap"`
	UrgencyWindowHours  int      `mapstructure:"urgency_window_hours"`
	UrgencyBonus        int      `mapstructure:"urgency_bonus"`
	BreachBonus         int      `mapstructure:"breach_bonus"`
}

// --- Resolver Configuration ---

// StaticReviewer is a config-declared reviewer used by the static resolver.
type StaticReviewer struct {
	Role         string `mapstructure:"role"`
	Region       string `mapstructure:"region"`
	District     string `mapstructure:"district"`
	Constituency string `mapstructure:"constituency"`
}

type ResolverConfig struct {
	// Mode selects the resolver backend: "static" or "keycloak".
	Mode     string `mapstructure:"mode"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds

	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`

	Static map[string]StaticReviewer `mapstructure:"static"`
}

// NotificationConfig holds settings for transition notifications.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// AuditConfig holds settings for the audit ledger search mirror.
type AuditConfig struct {
	SearchMirrorEnabled bool   `mapstructure:"search_mirror_enabled"`
	Index               string `mapstructure:"index"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
