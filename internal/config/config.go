package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Image     ImageConfig     `mapstructure:"image"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

type ServerConfig struct {
	Port       int        `mapstructure:"port" validate:"gt=0,lte=65535"`
	Mode       string     `mapstructure:"mode" validate:"oneof=debug release test"`
	CORS       CORSConfig `mapstructure:"cors"`
	AdminToken string     `mapstructure:"admin_token"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	// URI is the Postgres connection string. It is rewritten to
	// PrivateDomain by Load when one is configured.
	URI             string        `mapstructure:"uri" validate:"required_if=Driver postgres"`
	Path            string        `mapstructure:"path"`
	PrivateDomain   string        `mapstructure:"private_domain"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URI
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port" validate:"gt=0"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// LLMConfig selects the chat models used by the pipeline stages. Provider
// API keys are resolved per model name, see APIKey.
type LLMConfig struct {
	Model        string       `mapstructure:"model" validate:"required"`
	CaptionModel string       `mapstructure:"caption_model"`
	JudgeModel   string       `mapstructure:"judge_model"`
	Temperature  float32      `mapstructure:"temperature"`
	Keys         ProviderKeys `mapstructure:"keys"`
}

type ProviderKeys struct {
	OpenAI     string `mapstructure:"openai"`
	Anthropic  string `mapstructure:"anthropic"`
	Groq       string `mapstructure:"groq"`
	Perplexity string `mapstructure:"perplexity"`
	Gemini     string `mapstructure:"gemini"`
	Cerebras   string `mapstructure:"cerebras"`
}

type ImageConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 verification; JWKSURL enables RS256 via a
	// remote key set. At least one must be configured.
	JWTSecret string   `mapstructure:"jwt_secret" validate:"required_without=JWKSURL"`
	JWKSURL   string   `mapstructure:"jwks_url" validate:"omitempty,url"`
	Issuers   []string `mapstructure:"issuers"`
	Audience  string   `mapstructure:"audience"`
}

type PipelineConfig struct {
	Workers          int     `mapstructure:"workers" validate:"gt=0"`
	MaxCandidates    int     `mapstructure:"max_candidates" validate:"gt=0"`
	VectorWeight     float64 `mapstructure:"vector_weight" validate:"gte=0,lte=1"`
	ToneWeight       float64 `mapstructure:"tone_weight" validate:"gte=0,lte=1"`
	PopularityWeight float64 `mapstructure:"popularity_weight" validate:"gte=0,lte=1"`
	FetchMaxBytes    int64   `mapstructure:"fetch_max_bytes" validate:"gt=0"`
}

type LimitsConfig struct {
	Enforce      bool   `mapstructure:"enforce"`
	ConfigPath   string `mapstructure:"config_path"`
	DefaultLimit string `mapstructure:"default_limit" validate:"required"`
}

type StripeConfig struct {
	SecretKey         string            `mapstructure:"secret_key"`
	WebhookSecret     string            `mapstructure:"webhook_secret"`
	TestSecretKey     string            `mapstructure:"test_secret_key"`
	TestWebhookSecret string            `mapstructure:"test_webhook_secret"`
	Prices            map[string]string `mapstructure:"prices"`
	SuccessURL        string            `mapstructure:"success_url"`
	CancelURL         string            `mapstructure:"cancel_url"`
	// APIBase overrides https://api.stripe.com, for stripe-mock.
	APIBase string `mapstructure:"api_base"`
}

// ActiveSecretKey returns the live key in prod and the test key otherwise.
func (c *StripeConfig) ActiveSecretKey(env string) string {
	if env == "prod" {
		return c.SecretKey
	}
	return c.TestSecretKey
}

func (c *StripeConfig) ActiveWebhookSecret(env string) string {
	if env == "prod" {
		return c.WebhookSecret
	}
	return c.TestWebhookSecret
}

type TelegramConfig struct {
	BotToken    string            `mapstructure:"bot_token"`
	ChatIDs     map[string]string `mapstructure:"chat_ids"`
	DefaultChat string            `mapstructure:"default_chat"`
	// APIBase overrides https://api.telegram.org, for local bot API servers.
	APIBase string `mapstructure:"api_base"`
}

type SeedConfig struct {
	Workers     int    `mapstructure:"workers" validate:"gt=0"`
	BatchSize   int    `mapstructure:"batch_size" validate:"gt=0"`
	RetryCount  int    `mapstructure:"retry_count" validate:"gte=0"`
	CatalogPath string `mapstructure:"catalog_path"`
}

// Load reads configuration in layers. Later layers win for overlapping
// keys: base YAML, then config.production.yaml when APP_ENV=prod, then the
// git-ignored .memeforge.yaml override, then .env, then process env.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read base config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Merge production overrides on top of the base file
	if os.Getenv("APP_ENV") == "prod" {
		prodPath := filepath.Join(configDir(v, configPath), "config.production.yaml")
		if _, err := os.Stat(prodPath); err == nil {
			v.SetConfigFile(prodPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("failed to merge production config: %w", err)
			}
		}
	}

	// Merge the local override file last, it beats everything but env
	if _, err := os.Stat(localOverrideFile); err == nil {
		v.SetConfigFile(localOverrideFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", localOverrideFile, err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.URI = ResolveDatabaseURI(cfg.Database.URI, cfg.Database.PrivateDomain)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// localOverrideFile is the git-ignored per-developer override.
const localOverrideFile = ".memeforge.yaml"

func configDir(v *viper.Viper, configPath string) string {
	if configPath != "" {
		return filepath.Dir(configPath)
	}
	if used := v.ConfigFileUsed(); used != "" {
		return filepath.Dir(used)
	}
	return "./configs"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/memeforge.db")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "templates")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "memes")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("image.model", "imagen-3.0-generate-002")
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.max_candidates", 20)
	v.SetDefault("pipeline.vector_weight", 0.7)
	v.SetDefault("pipeline.tone_weight", 0.2)
	v.SetDefault("pipeline.popularity_weight", 0.1)
	v.SetDefault("pipeline.fetch_max_bytes", 1<<20)
	v.SetDefault("limits.enforce", true)
	v.SetDefault("limits.config_path", "./configs/subscription.yaml")
	v.SetDefault("limits.default_limit", "daily_memes")
	v.SetDefault("embedding.provider", "openai-compatible")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("seed.workers", 5)
	v.SetDefault("seed.batch_size", 10)
	v.SetDefault("seed.retry_count", 3)
	v.SetDefault("seed.catalog_path", "./data/templates.json")
}

// bindEnvVars binds sensitive values to explicit environment variables so
// they never have to live in a YAML file.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("env", "APP_ENV")
	v.BindEnv("database.uri", "DATABASE_URI")
	v.BindEnv("database.private_domain", "PRIVATE_DB_DOMAIN")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("llm.keys.openai", "OPENAI_API_KEY")
	v.BindEnv("llm.keys.anthropic", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.keys.groq", "GROQ_API_KEY")
	v.BindEnv("llm.keys.perplexity", "PERPLEXITY_API_KEY")
	v.BindEnv("llm.keys.gemini", "GEMINI_API_KEY")
	v.BindEnv("llm.keys.cerebras", "CEREBRAS_API_KEY")
	v.BindEnv("image.api_key", "GEMINI_API_KEY")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.jwks_url", "JWKS_URL")
	v.BindEnv("auth.audience", "JWT_AUDIENCE")
	v.BindEnv("server.admin_token", "ADMIN_TOKEN")
	v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	v.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	v.BindEnv("stripe.test_secret_key", "STRIPE_TEST_SECRET_KEY")
	v.BindEnv("stripe.test_webhook_secret", "STRIPE_TEST_WEBHOOK_SECRET")
	v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
}
