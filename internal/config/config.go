package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App    App    `mapstructure:"app"`
	Store  Store  `mapstructure:"store"`
	Notion Notion `mapstructure:"notion"`
	Ingest Ingest `mapstructure:"ingest"`
	Fetch  Fetch  `mapstructure:"fetch"`
	Probe  Probe  `mapstructure:"probe"`
	AI     AI     `mapstructure:"ai"`
	Digest Digest `mapstructure:"digest"`
}

// App holds general application configuration
type App struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	Timezone  string `mapstructure:"timezone"`
	DataDir   string `mapstructure:"data_dir"`
}

// Store selects the item/report store backend
type Store struct {
	Backend string    `mapstructure:"backend"`
	SQL     SQLConfig `mapstructure:"sql"`
}

// SQLConfig holds the local SQL store configuration
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Notion holds the Notion workspace configuration
type Notion struct {
	Token               string        `mapstructure:"token"`
	DatabaseID          string        `mapstructure:"database_id"`
	ReportingDatabaseID string        `mapstructure:"reporting_database_id"`
	DigestParentID      string        `mapstructure:"digest_parent_id"`
	Timeout             string        `mapstructure:"timeout"`
	Properties          PropertyNames `mapstructure:"properties"`
	Status              StatusLabels  `mapstructure:"status"`
}

// PropertyNames maps logical item fields to Notion property names
type PropertyNames struct {
	Title         string `mapstructure:"title"`
	Status        string `mapstructure:"status"`
	URL           string `mapstructure:"url"`
	Summary       string `mapstructure:"summary"`
	Confidence    string `mapstructure:"confidence"`
	Sensitivity   string `mapstructure:"sensitivity"`
	Tags          string `mapstructure:"tags"`
	Source        string `mapstructure:"source"`
	CanonicalURL  string `mapstructure:"canonical_url"`
	DuplicateOf   string `mapstructure:"duplicate_of"`
	RawContent    string `mapstructure:"raw_content"`
	Attachments   string `mapstructure:"attachments"`
	ItemType      string `mapstructure:"item_type"`
	ContentType   string `mapstructure:"content_type"`
	RuleVersion   string `mapstructure:"rule_version"`
	PromptVersion string `mapstructure:"prompt_version"`
}

// StatusLabels maps canonical statuses to the option names used in Notion
type StatusLabels struct {
	ToProcess   string `mapstructure:"to_process"`
	Pending     string `mapstructure:"pending"`
	Ready       string `mapstructure:"ready"`
	Error       string `mapstructure:"error"`
	Unprocessed string `mapstructure:"unprocessed"`
	Excluded    string `mapstructure:"excluded"`
}

// Ingest holds per-item pipeline configuration
type Ingest struct {
	ConfidenceThreshold float64           `mapstructure:"confidence_threshold"`
	Workers             int               `mapstructure:"workers"`
	SourceStatus        map[string]string `mapstructure:"source_status"`
}

// Fetch holds content fetcher configuration
type Fetch struct {
	Timeout        string `mapstructure:"timeout"`
	ContentRetries int    `mapstructure:"content_retries"`
	TitleRetries   int    `mapstructure:"title_retries"`
	Cache          string `mapstructure:"cache"`
	CacheSize      int    `mapstructure:"cache_size"`
	UserAgent      string `mapstructure:"user_agent"`
	Locale         string `mapstructure:"locale"`
}

// Probe holds content-type probe configuration
type Probe struct {
	Timeout      string `mapstructure:"timeout"`
	MaxRedirects int    `mapstructure:"max_redirects"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Digest holds report aggregation configuration
type Digest struct {
	CategoriesFile string `mapstructure:"categories_file"`
	IncludePrivate bool   `mapstructure:"include_private"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".inboxdigest")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// decode unmarshals, post-processes and validates a populated viper instance.
func decode(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached configuration so the next Load re-reads all sources.
func Reset() {
	globalConfig = nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.data_dir", ".inboxdigest")

	// Store defaults
	v.SetDefault("store.backend", "notion")
	v.SetDefault("store.sql.driver", "sqlite3")

	// Notion defaults
	v.SetDefault("notion.timeout", "30s")
	v.SetDefault("notion.properties.title", "Name")
	v.SetDefault("notion.properties.status", "Status")
	v.SetDefault("notion.properties.url", "URL")
	v.SetDefault("notion.properties.summary", "Summary")
	v.SetDefault("notion.properties.confidence", "Confidence")
	v.SetDefault("notion.properties.sensitivity", "Sensitivity")
	v.SetDefault("notion.properties.tags", "Tags")
	v.SetDefault("notion.properties.source", "Source")
	v.SetDefault("notion.properties.canonical_url", "Canonical URL")
	v.SetDefault("notion.properties.duplicate_of", "Duplicate Of")
	v.SetDefault("notion.properties.raw_content", "Raw Content")
	v.SetDefault("notion.properties.attachments", "Attachments")
	v.SetDefault("notion.properties.item_type", "ItemType")
	v.SetDefault("notion.properties.content_type", "ContentType")
	v.SetDefault("notion.properties.rule_version", "Rule Version")
	v.SetDefault("notion.properties.prompt_version", "Prompt Version")
	v.SetDefault("notion.status.to_process", "To Read")
	v.SetDefault("notion.status.pending", "pending")
	v.SetDefault("notion.status.ready", "ready")
	v.SetDefault("notion.status.error", "Error")
	v.SetDefault("notion.status.unprocessed", "unprocessed")
	v.SetDefault("notion.status.excluded", "excluded")

	// Ingest defaults
	v.SetDefault("ingest.confidence_threshold", 0.5)
	v.SetDefault("ingest.workers", 1)

	// Fetch defaults
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.content_retries", 1)
	v.SetDefault("fetch.title_retries", -1)
	v.SetDefault("fetch.cache", "memory")
	v.SetDefault("fetch.cache_size", 512)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36")
	v.SetDefault("fetch.locale", "en-US")

	// Probe defaults
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.max_redirects", 5)

	// AI defaults
	v.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	v.SetDefault("ai.gemini.timeout", "30s")
	v.SetDefault("ai.gemini.max_tokens", 2048)
	v.SetDefault("ai.gemini.temperature", 0.3)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})
	bindEnvKeys(v, "ai.gemini.model", []string{"GEMINI_MODEL"})

	bindEnvKeys(v, "app.log_level", []string{"LOG_LEVEL", "INBOXDIGEST_LOG_LEVEL"})
	bindEnvKeys(v, "app.log_format", []string{"LOG_FORMAT"})
	bindEnvKeys(v, "app.timezone", []string{"TIMEZONE", "TZ"})
	bindEnvKeys(v, "app.data_dir", []string{"INBOXDIGEST_DATA_DIR"})

	bindEnvKeys(v, "store.backend", []string{"STORE_BACKEND"})
	bindEnvKeys(v, "store.sql.driver", []string{"STORE_SQL_DRIVER"})
	bindEnvKeys(v, "store.sql.dsn", []string{"STORE_SQL_DSN", "DATABASE_URL"})

	// Notion workspace
	bindEnvKeys(v, "notion.token", []string{"NOTION_TOKEN", "NOTION_API_KEY"})
	bindEnvKeys(v, "notion.database_id", []string{"NOTION_DATABASE_ID"})
	bindEnvKeys(v, "notion.reporting_database_id", []string{"NOTION_REPORTING_DB_ID", "NOTION_REPORTING_DATABASE_ID"})
	bindEnvKeys(v, "notion.digest_parent_id", []string{"NOTION_DIGEST_PARENT_ID"})

	propertyEnv := map[string]string{
		"status":       "NOTION_PROP_STATUS",
		"url":          "NOTION_PROP_URL",
		"summary":      "NOTION_PROP_SUMMARY",
		"confidence":   "NOTION_PROP_CONFIDENCE",
		"sensitivity":  "NOTION_PROP_SENSITIVITY",
		"item_type":    "NOTION_PROP_ITEM_TYPE",
		"content_type": "NOTION_PROP_CONTENT_TYPE",
	}
	for key, env := range propertyEnv {
		bindEnvKeys(v, "notion.properties."+key, []string{env})
	}

	statusEnv := map[string]string{
		"to_process":  "NOTION_STATUS_TO_READ",
		"pending":     "NOTION_STATUS_PENDING",
		"ready":       "NOTION_STATUS_READY",
		"error":       "NOTION_STATUS_ERROR",
		"unprocessed": "NOTION_STATUS_UNPROCESSED",
		"excluded":    "NOTION_STATUS_EXCLUDED",
	}
	for key, env := range statusEnv {
		bindEnvKeys(v, "notion.status."+key, []string{env})
	}

	bindEnvKeys(v, "ingest.confidence_threshold", []string{"CONFIDENCE_THRESHOLD"})
	bindEnvKeys(v, "ingest.workers", []string{"INGEST_WORKERS"})

	bindEnvKeys(v, "fetch.timeout", []string{"PAGE_FETCH_TIMEOUT"})
	bindEnvKeys(v, "fetch.content_retries", []string{"PAGE_FETCH_RETRIES"})
	bindEnvKeys(v, "fetch.title_retries", []string{"PAGE_TITLE_RETRIES"})
	bindEnvKeys(v, "fetch.cache", []string{"FETCH_CACHE"})
	bindEnvKeys(v, "fetch.user_agent", []string{"ANTI_BOT_USER_AGENT"})
	bindEnvKeys(v, "fetch.locale", []string{"ANTI_BOT_LOCALE"})

	bindEnvKeys(v, "probe.timeout", []string{"CONTENT_TYPE_TIMEOUT"})

	bindEnvKeys(v, "digest.categories_file", []string{"DIGEST_CATEGORIES_FILE"})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Digest.CategoriesFile != "" {
		config.Digest.CategoriesFile = expandPath(config.Digest.CategoriesFile)
	}
	if config.Store.SQL.DSN == "" && config.Store.SQL.Driver == "sqlite3" {
		config.Store.SQL.DSN = filepath.Join(config.App.DataDir, "inbox.db")
	}

	// A negative title retry count means "same as content retries"
	if config.Fetch.TitleRetries < 0 {
		config.Fetch.TitleRetries = config.Fetch.ContentRetries
	}

	durations := map[string]string{
		"ai.gemini.timeout": config.AI.Gemini.Timeout,
		"notion.timeout":    config.Notion.Timeout,
		"fetch.timeout":     config.Fetch.Timeout,
		"probe.timeout":     config.Probe.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present and consistent
func validateConfig(config *Config) error {
	var errors []string

	if config.Ingest.ConfidenceThreshold < 0 || config.Ingest.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("ingest.confidence_threshold must be between 0 and 1, got %v", config.Ingest.ConfidenceThreshold))
	}
	if config.Ingest.Workers < 1 {
		errors = append(errors, "ingest.workers must be at least 1")
	}
	if config.Fetch.ContentRetries < 0 {
		errors = append(errors, "fetch.content_retries cannot be negative")
	}

	switch config.Store.Backend {
	case "notion":
		// Credentials are checked when the store is opened so that commands
		// which never touch Notion still run.
	case "sql":
		switch config.Store.SQL.Driver {
		case "sqlite3", "postgres":
		default:
			errors = append(errors, fmt.Sprintf("Unknown SQL driver: %s. Supported: sqlite3, postgres", config.Store.SQL.Driver))
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown store backend: %s. Supported: notion, sql", config.Store.Backend))
	}

	switch config.Fetch.Cache {
	case "memory", "sqlite", "none":
	default:
		errors = append(errors, fmt.Sprintf("Unknown fetch cache: %s. Supported: memory, sqlite, none", config.Fetch.Cache))
	}

	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("Unknown timezone: %s", config.App.Timezone))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Duration parses a validated duration string, returning fallback when empty.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// HasGemini returns true if a usable Gemini API key is configured
func HasGemini() bool {
	return isValidAPIKey(Get().AI.Gemini.APIKey)
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}
	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}
