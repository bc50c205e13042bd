package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadbatch/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PipelineConfig configures batching, concurrency, and output policy.
type PipelineConfig struct {
	BatchSize            int    `yaml:"batch_size" mapstructure:"batch_size" validate:"gt=0"`
	MaxConcurrentBatches int    `yaml:"max_concurrent_batches" mapstructure:"max_concurrent_batches" validate:"gt=0"`
	DedupPolicy          string `yaml:"dedup_policy" mapstructure:"dedup_policy" validate:"oneof=first-seen highest-score"`
	EnrichmentEnabled    bool   `yaml:"enrichment_enabled" mapstructure:"enrichment_enabled"`
	EnrichAll            bool   `yaml:"enrich_all" mapstructure:"enrich_all"`
	SampleRows           int    `yaml:"sample_rows" mapstructure:"sample_rows" validate:"gte=0"`
	SniffValues          bool   `yaml:"sniff_values" mapstructure:"sniff_values"`
	CheckpointDir        string `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir" validate:"required"`
}

// RetryConfig configures the enrichment retry policy.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	BaseDelayMs int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms" validate:"gte=0"`
	MaxDelayMs  int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms" validate:"gtefield=BaseDelayMs"`
	Jitter      float64 `yaml:"jitter" mapstructure:"jitter" validate:"gte=0,lte=1"`
}

// EnrichmentConfig configures the external enrichment adapter.
type EnrichmentConfig struct {
	Backend                 string  `yaml:"backend" mapstructure:"backend" validate:"oneof=anthropic gemini perplexity stub"`
	RateLimitRPS            float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps" validate:"gt=0"`
	Burst                   int     `yaml:"burst" mapstructure:"burst" validate:"gte=1"`
	CallTimeoutSecs         int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs" validate:"gt=0"`
	PromptFile              string  `yaml:"prompt_file" mapstructure:"prompt_file"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold" validate:"gte=0"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs" validate:"gte=0"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
}

// FetchConfig configures downloads of remote (http, https, ftp) inputs.
type FetchConfig struct {
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=0"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps" validate:"gte=0"`
}

// MonitoringConfig holds alert thresholds for run ledger health checks.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	MinFinishedRuns      int     `yaml:"min_finished_runs" mapstructure:"min_finished_runs" validate:"gte=0"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd" validate:"gte=0"`
	StaleRunHours        int     `yaml:"stale_run_hours" mapstructure:"stale_run_hours" validate:"gte=0"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=0"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
}

// SalesforceConfig holds Salesforce JWT auth settings and lead export policy.
type SalesforceConfig struct {
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	Username     string  `yaml:"username" mapstructure:"username"`
	KeyPath      string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL     string  `yaml:"login_url" mapstructure:"login_url" validate:"omitempty,url"`
	MinScore     int     `yaml:"min_score" mapstructure:"min_score" validate:"gte=0,lte=2"`
	LeadSource   string  `yaml:"lead_source" mapstructure:"lead_source"`
	ScoreField   string  `yaml:"score_field" mapstructure:"score_field"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps" validate:"gte=0"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ScoringConfig overrides the qualification rules. Empty lists and zero
// thresholds keep the built-in defaults; RulesFile is applied before the
// inline overrides.
type ScoringConfig struct {
	RulesFile        string   `yaml:"rules_file" mapstructure:"rules_file"`
	OutsourcingTerms []string `yaml:"outsourcing_terms" mapstructure:"outsourcing_terms"`
	DomainKeywords   []string `yaml:"domain_keywords" mapstructure:"domain_keywords"`
	AdjacentTerms    []string `yaml:"adjacent_terms" mapstructure:"adjacent_terms"`
	TitleTerms       []string `yaml:"title_terms" mapstructure:"title_terms"`
	ServiceTerms     []string `yaml:"service_terms" mapstructure:"service_terms"`
	MinEmployees     int      `yaml:"min_employees" mapstructure:"min_employees" validate:"gte=0"`
	LargeEmployees   int      `yaml:"large_employees" mapstructure:"large_employees" validate:"gte=0"`
}

// NormalizeConfig configures the normalization engine.
type NormalizeConfig struct {
	CityMaxLen int `yaml:"city_max_len" mapstructure:"city_max_len" validate:"gt=0"`
}

// StoreConfig configures the run ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from .env, config.yaml, and the environment, then
// validates it. Validation failures are returned as a FatalConfigError.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADBATCH")
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

	if err := cfg.Validate("base"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.batch_size", 200)
	v.SetDefault("pipeline.max_concurrent_batches", 4)
	v.SetDefault("pipeline.dedup_policy", "first-seen")
	v.SetDefault("pipeline.enrichment_enabled", false)
	v.SetDefault("pipeline.enrich_all", false)
	v.SetDefault("pipeline.sample_rows", 50)
	v.SetDefault("pipeline.sniff_values", false)
	v.SetDefault("pipeline.checkpoint_dir", ".leadbatch/checkpoints")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("enrichment.backend", "anthropic")
	v.SetDefault("enrichment.rate_limit_rps", 2.0)
	v.SetDefault("enrichment.burst", 1)
	v.SetDefault("enrichment.call_timeout_secs", 60)
	v.SetDefault("enrichment.prompt_file", "")
	v.SetDefault("enrichment.circuit_failure_threshold", 5)
	v.SetDefault("enrichment.circuit_reset_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("perplexity.base_url", "")
	v.SetDefault("perplexity.max_tokens", 4096)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.user_agent", "leadbatch/1.0")
	v.SetDefault("fetch.rate_limit_rps", 5.0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_finished_runs", 5)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.stale_run_hours", 6)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.min_score", 2)
	v.SetDefault("salesforce.lead_source", "leadbatch")
	v.SetDefault("salesforce.score_field", "")
	v.SetDefault("salesforce.rate_limit_rps", 5.0)
	v.SetDefault("pricing.models.claude-haiku-4-5-20251001.input", 1.00)
	v.SetDefault("pricing.models.claude-haiku-4-5-20251001.output", 5.00)
	v.SetDefault("pricing.models.claude-sonnet-4-5-20250929.input", 3.00)
	v.SetDefault("pricing.models.claude-sonnet-4-5-20250929.output", 15.00)
	v.SetDefault("scoring.rules_file", "")
	v.SetDefault("scoring.min_employees", 0)
	v.SetDefault("scoring.large_employees", 0)
	v.SetDefault("normalize.city_max_len", 12)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", ".leadbatch/ledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the loaded configuration for the given mode and returns a
// FatalConfigError naming every violation. Mode "base" checks the struct tags
// only; "enrich" additionally requires credentials for the selected backend;
// "ledger" requires a database URL unless the store is disabled; "salesforce"
// requires the JWT credentials.
func (c *Config) Validate(mode string) error {
	var errs []string

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	if err := v.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return resilience.NewFatalConfigError("invalid configuration", err)
		}
		for _, fe := range ve {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			errs = append(errs, fmt.Sprintf("%s failed %s", field, describeTag(fe)))
		}
	}

	switch mode {
	case "base":
	case "enrich":
		switch c.Enrichment.Backend {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required")
			}
		case "perplexity":
			if c.Perplexity.Key == "" {
				errs = append(errs, "perplexity.key is required")
			}
		}
	case "ledger":
		if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	default:
		return resilience.NewFatalConfigError(fmt.Sprintf("unknown mode %q", mode), nil)
	}

	if len(errs) > 0 {
		return resilience.NewFatalConfigError("invalid configuration: "+strings.Join(errs, "; "), nil)
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
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
