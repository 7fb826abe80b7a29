package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Hunter     HunterConfig     `yaml:"hunter" mapstructure:"hunter"`
	Apollo     ApolloConfig     `yaml:"apollo" mapstructure:"apollo"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	ICP        ICPConfig        `yaml:"icp" mapstructure:"icp"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the lead and job persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PipelineConfig bounds how a job is scheduled.
type PipelineConfig struct {
	MaxConcurrentDomains int           `yaml:"max_concurrent_domains" mapstructure:"max_concurrent_domains"`
	MaxLeadsPerDomain    int           `yaml:"max_leads_per_domain" mapstructure:"max_leads_per_domain"`
	LeadConcurrency      int           `yaml:"lead_concurrency" mapstructure:"lead_concurrency"`
	CallTimeoutSecs      int           `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	Retry                RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit              CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// CallTimeout returns the per-attempt provider timeout.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSecs) * time.Second
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-provider circuit breaker. A zero
// failure threshold disables it.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ProvidersConfig selects and bounds each provider category.
type ProvidersConfig struct {
	Discovery  ProviderConfig `yaml:"discovery" mapstructure:"discovery"`
	Enrichment ProviderConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Drafting   ProviderConfig `yaml:"drafting" mapstructure:"drafting"`
	// FixturePath is the YAML file read by the fixture backends.
	FixturePath string `yaml:"fixture_path" mapstructure:"fixture_path"`
}

// ProviderConfig configures one provider category.
type ProviderConfig struct {
	Backend        string  `yaml:"backend" mapstructure:"backend"`
	MaxConcurrency int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// HunterConfig holds Hunter.io settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// TitleFilter keeps only contacts whose position contains one of these.
	// Empty means the ICP target titles are used.
	TitleFilter []string `yaml:"title_filter" mapstructure:"title_filter"`
}

// ApolloConfig holds Apollo.io settings.
type ApolloConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	CacheTTLMins int    `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	// Offer is the one-paragraph pitch inserted into every prompt.
	Offer string `yaml:"offer" mapstructure:"offer"`
}

// ICPConfig points at the Ideal Customer Profile file.
type ICPConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// Threshold overrides the profile threshold when > 0.
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
}

// ExportConfig configures flat-file export of leads.
type ExportConfig struct {
	Dir        string    `yaml:"dir" mapstructure:"dir"`
	Format     string    `yaml:"format" mapstructure:"format"`
	OnComplete bool      `yaml:"on_complete" mapstructure:"on_complete"`
	MinScore   int       `yaml:"min_score" mapstructure:"min_score"`
	FTP        FTPConfig `yaml:"ftp" mapstructure:"ftp"`
}

// FTPConfig configures the optional upload of export artifacts.
type FTPConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	IntakeDB string `yaml:"intake_db" mapstructure:"intake_db"`
	LeadsDB  string `yaml:"leads_db" mapstructure:"leads_db"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinUnits             int64   `yaml:"min_units" mapstructure:"min_units"`
}

// Backend names.
const (
	BackendHunter    = "hunter"
	BackendApollo    = "apollo"
	BackendAnthropic = "anthropic"
	BackendTemplate  = "template"
	BackendFixture   = "fixture"
)

// Load reads configuration from .env, config.yaml and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("pipeline.max_concurrent_domains", 10)
	v.SetDefault("pipeline.max_leads_per_domain", 5)
	v.SetDefault("pipeline.lead_concurrency", 4)
	v.SetDefault("pipeline.call_timeout_secs", 30)
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.initial_backoff_ms", 500)
	v.SetDefault("pipeline.retry.max_backoff_ms", 10000)
	v.SetDefault("pipeline.retry.multiplier", 2.0)
	v.SetDefault("pipeline.retry.jitter_fraction", 0.25)
	v.SetDefault("pipeline.circuit.failure_threshold", 0)
	v.SetDefault("pipeline.circuit.reset_timeout_secs", 30)

	v.SetDefault("providers.discovery.backend", BackendHunter)
	v.SetDefault("providers.discovery.max_concurrency", 5)
	v.SetDefault("providers.enrichment.backend", BackendApollo)
	v.SetDefault("providers.enrichment.max_concurrency", 5)
	v.SetDefault("providers.drafting.backend", BackendAnthropic)
	v.SetDefault("providers.drafting.max_concurrency", 5)
	v.SetDefault("providers.fixture_path", "")

	// Secrets have empty defaults so AutomaticEnv can populate them on Unmarshal.
	v.SetDefault("hunter.key", "")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("apollo.key", "")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api/v1")
	v.SetDefault("apollo.cache_ttl_mins", 60)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 400)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.offer", "We build AI-powered lead generation systems that deliver qualified pipeline every week, replacing the 20-40 hours of manual prospecting sales teams spend weekly.")

	v.SetDefault("icp.path", "")
	v.SetDefault("icp.threshold", 0)

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.on_complete", false)
	v.SetDefault("export.min_score", 0)
	v.SetDefault("export.ftp.url", "")
	v.SetDefault("export.ftp.user", "anonymous")
	v.SetDefault("export.ftp.password", "anonymous@")
	v.SetDefault("export.ftp.timeout_secs", 30)

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.intake_db", "")
	v.SetDefault("notion.leads_db", "")

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_units", 5)
}

// Validate checks the settings a command needs. mode is one of "run",
// "serve", "batch", "export" or "store". Every problem is reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}

	switch mode {
	case "store":
	case "export":
		c.validateExport(add)
	case "run", "serve", "batch":
		c.validatePipeline(add)
		c.validateProviders(add)
		if c.Export.OnComplete {
			c.validateExport(add)
		}
		if mode == "serve" && c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if mode == "batch" {
			if c.Notion.Token == "" {
				add("notion.token is required")
			}
			if c.Notion.IntakeDB == "" {
				add("notion.intake_db is required")
			}
		}
	default:
		add("unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return model.NewConfigurationError(problems...)
	}
	return nil
}

func (c *Config) validatePipeline(add func(string, ...any)) {
	p := c.Pipeline
	if p.MaxConcurrentDomains < 1 || p.MaxConcurrentDomains > 100 {
		add("pipeline.max_concurrent_domains must be between 1 and 100")
	}
	if p.MaxLeadsPerDomain < 1 || p.MaxLeadsPerDomain > 100 {
		add("pipeline.max_leads_per_domain must be between 1 and 100")
	}
	if p.LeadConcurrency < 1 || p.LeadConcurrency > 50 {
		add("pipeline.lead_concurrency must be between 1 and 50")
	}
	if p.CallTimeoutSecs <= 0 {
		add("pipeline.call_timeout_secs must be > 0")
	}
	if p.Retry.MaxAttempts < 1 {
		add("pipeline.retry.max_attempts must be >= 1")
	}
	if p.Retry.JitterFraction < 0 || p.Retry.JitterFraction > 1 {
		add("pipeline.retry.jitter_fraction must be between 0 and 1")
	}
	if p.Circuit.FailureThreshold < 0 {
		add("pipeline.circuit.failure_threshold must be >= 0")
	}
}

func (c *Config) validateProviders(add func(string, ...any)) {
	kinds := []struct {
		name    string
		cfg     ProviderConfig
		allowed []string
	}{
		{"discovery", c.Providers.Discovery, []string{BackendHunter, BackendFixture}},
		{"enrichment", c.Providers.Enrichment, []string{BackendApollo, BackendFixture}},
		{"drafting", c.Providers.Drafting, []string{BackendAnthropic, BackendTemplate}},
	}
	needFixture := false
	for _, k := range kinds {
		if !contains(k.allowed, k.cfg.Backend) {
			add("providers.%s.backend must be one of %s, got %q", k.name, strings.Join(k.allowed, "|"), k.cfg.Backend)
		}
		if k.cfg.MaxConcurrency < 1 {
			add("providers.%s.max_concurrency must be >= 1", k.name)
		}
		if k.cfg.RatePerSec < 0 {
			add("providers.%s.rate_per_sec must be >= 0", k.name)
		}
		if k.cfg.Backend == BackendFixture {
			needFixture = true
		}
	}
	if needFixture && c.Providers.FixturePath == "" {
		add("providers.fixture_path is required for the fixture backend")
	}

	// Email verification goes through Hunter even when Apollo enriches.
	if (c.Providers.Discovery.Backend == BackendHunter || c.Providers.Enrichment.Backend == BackendApollo) && c.Hunter.Key == "" {
		add("hunter.key is required")
	}
	if c.Providers.Enrichment.Backend == BackendApollo && c.Apollo.Key == "" {
		add("apollo.key is required")
	}
	if c.Providers.Drafting.Backend == BackendAnthropic && c.Anthropic.Key == "" {
		add("anthropic.key is required")
	}
}

func (c *Config) validateExport(add func(string, ...any)) {
	switch c.Export.Format {
	case "csv", "xlsx":
	default:
		add("export.format must be csv or xlsx, got %q", c.Export.Format)
	}
	if c.Export.Dir == "" {
		add("export.dir is required")
	}
	if c.Export.FTP.URL != "" && !strings.HasPrefix(c.Export.FTP.URL, "ftp://") {
		add("export.ftp.url must be an ftp:// URL")
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
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
