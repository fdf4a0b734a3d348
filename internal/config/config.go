package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	GoogleAds  GoogleAdsConfig  `yaml:"google_ads" mapstructure:"google_ads"`
	LPSource   LPSourceConfig   `yaml:"lp_source" mapstructure:"lp_source"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Automation AutomationConfig `yaml:"automation" mapstructure:"automation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Playbook   PlaybookConfig   `yaml:"playbook" mapstructure:"playbook"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleAdsConfig configures the ad platform client.
type GoogleAdsConfig struct {
	DeveloperToken string  `yaml:"developer_token" mapstructure:"developer_token"`
	CustomerID     string  `yaml:"customer_id" mapstructure:"customer_id"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// LPSourceConfig configures the landing-page content source.
type LPSourceConfig struct {
	RepoOwner string `yaml:"repo_owner" mapstructure:"repo_owner"`
	RepoName  string `yaml:"repo_name" mapstructure:"repo_name"`
}

// ReportConfig configures report generation and delivery.
type ReportConfig struct {
	Recipients    []string `yaml:"recipients" mapstructure:"recipients"`
	DefaultFormat string   `yaml:"default_format" mapstructure:"default_format"`
	HistoryLimit  int      `yaml:"history_limit" mapstructure:"history_limit"`
	IncludeCharts bool     `yaml:"include_charts" mapstructure:"include_charts"`
}

// AutomationConfig holds thresholds and per-action deadlines.
type AutomationConfig struct {
	ActionTimeoutSecs int     `yaml:"action_timeout_secs" mapstructure:"action_timeout_secs"`
	RetentionDays     int     `yaml:"retention_days" mapstructure:"retention_days"`
	BudgetAlertRatio  float64 `yaml:"budget_alert_ratio" mapstructure:"budget_alert_ratio"`
}

// SchedulerConfig sets the cadence of each automation job.
type SchedulerConfig struct {
	AdOptimizationHours int `yaml:"ad_optimization_hours" mapstructure:"ad_optimization_hours"`
	LPSuggestionHours   int `yaml:"lp_suggestion_hours" mapstructure:"lp_suggestion_hours"`
	MetricsRefreshMins  int `yaml:"metrics_refresh_mins" mapstructure:"metrics_refresh_mins"`
	AlertCheckMins      int `yaml:"alert_check_mins" mapstructure:"alert_check_mins"`
	PhaseGateHours      int `yaml:"phase_gate_hours" mapstructure:"phase_gate_hours"`
	CleanupHours        int `yaml:"cleanup_hours" mapstructure:"cleanup_hours"`
}

// PlaybookConfig locates the PKG catalog.
type PlaybookConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LPOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lpops.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("google_ads.rate_per_second", 2.0)
	v.SetDefault("report.default_format", "json")
	v.SetDefault("report.history_limit", 50)
	v.SetDefault("report.include_charts", false)
	v.SetDefault("automation.action_timeout_secs", 120)
	v.SetDefault("automation.retention_days", 90)
	v.SetDefault("automation.budget_alert_ratio", 1.0)
	v.SetDefault("scheduler.ad_optimization_hours", 4)
	v.SetDefault("scheduler.lp_suggestion_hours", 24)
	v.SetDefault("scheduler.metrics_refresh_mins", 60)
	v.SetDefault("scheduler.alert_check_mins", 30)
	v.SetDefault("scheduler.phase_gate_hours", 24)
	v.SetDefault("scheduler.cleanup_hours", 168)
	v.SetDefault("playbook.catalog_path", "playbooks")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
