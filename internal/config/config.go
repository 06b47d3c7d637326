package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	OIDC       OIDCConfig
	Gateway    GatewayConfig
	RateLimit  RateLimitConfig
	AI         AIConfig
	Storage    StorageConfig
	Processing ProcessingConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

func (c ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type OIDCConfig struct {
	Issuer   string
	JWKSURL  string
	ClientID string
}

// GatewayConfig toggles header-based auth behind a ForwardAuth gateway.
type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ProcessPerHour int
	BatchPerHour   int
	UploadPerHour  int
	StatusPerMin   int
}

// AIConfig points at the OpenAI-compatible inference endpoint hosting the
// three fine-tuned models.
type AIConfig struct {
	APIKey          string
	BaseURL         string
	ExtractorModel  string
	ClassifierModel string
	DuplicatorModel string
	ExtractTimeout  time.Duration
	ClassifyTimeout time.Duration
	VariantTimeout  time.Duration
}

type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	// Driver selects the durable job store: "redis" or "file".
	Driver string
	// DataDir backs the file job store and local result artifacts.
	DataDir string
}

type ProcessingConfig struct {
	ChunkSize        int
	Overlap          int
	ChunkTimeout     time.Duration
	DocumentTimeout  time.Duration
	BatchTimeout     time.Duration
	BatchConcurrency int
	StallThreshold   time.Duration
	CacheTTL         time.Duration
	PruneAge         time.Duration
	CreditsPerChunk  int
	StartingCredits  int
	// SimulateMissingJobs synthesizes a placeholder job when a status lookup
	// misses. Never honored in production.
	SimulateMissingJobs bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("AI_API_KEY")
	readSecret("JWT_SECRET")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("oidc.jwks_url", "OIDC_JWKS_URL")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ai.api_key", "AI_API_KEY")
	_ = viper.BindEnv("ai.base_url", "AI_BASE_URL")
	_ = viper.BindEnv("ai.extractor_model", "AI_EXTRACTOR_MODEL")
	_ = viper.BindEnv("ai.classifier_model", "AI_CLASSIFIER_MODEL")
	_ = viper.BindEnv("ai.duplicator_model", "AI_DUPLICATOR_MODEL")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = viper.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = viper.BindEnv("storage.data_dir", "STORAGE_DATA_DIR")
	_ = viper.BindEnv("processing.batch_concurrency", "BATCH_CONCURRENCY")
	_ = viper.BindEnv("processing.simulate_missing_jobs", "SIMULATE_MISSING_JOBS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.process_per_hour", 30)
	viper.SetDefault("ratelimit.batch_per_hour", 10)
	viper.SetDefault("ratelimit.upload_per_hour", 50)
	viper.SetDefault("ratelimit.status_per_min", 120)

	// AI defaults
	viper.SetDefault("ai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.extractor_model", "ft:datasynthetix-extractor")
	viper.SetDefault("ai.classifier_model", "ft:datasynthetix-classifier")
	viper.SetDefault("ai.duplicator_model", "ft:datasynthetix-duplicator")
	viper.SetDefault("ai.extract_timeout", "30s")
	viper.SetDefault("ai.classify_timeout", "15s")
	viper.SetDefault("ai.variant_timeout", "20s")

	// Storage defaults
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.driver", "redis")
	viper.SetDefault("storage.data_dir", "./data")

	// Processing defaults
	viper.SetDefault("processing.chunk_size", 1000)
	viper.SetDefault("processing.overlap", 100)
	viper.SetDefault("processing.chunk_timeout", "120s")
	viper.SetDefault("processing.document_timeout", "600s")
	viper.SetDefault("processing.batch_timeout", "30m")
	viper.SetDefault("processing.batch_concurrency", 2)
	viper.SetDefault("processing.stall_threshold", "30s")
	viper.SetDefault("processing.cache_ttl", "5s")
	viper.SetDefault("processing.prune_age", "1h")
	viper.SetDefault("processing.credits_per_chunk", 1)
	viper.SetDefault("processing.starting_credits", 1000)
	viper.SetDefault("processing.simulate_missing_jobs", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("oidc.issuer"),
			JWKSURL:  viper.GetString("oidc.jwks_url"),
			ClientID: viper.GetString("oidc.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ProcessPerHour: viper.GetInt("ratelimit.process_per_hour"),
			BatchPerHour:   viper.GetInt("ratelimit.batch_per_hour"),
			UploadPerHour:  viper.GetInt("ratelimit.upload_per_hour"),
			StatusPerMin:   viper.GetInt("ratelimit.status_per_min"),
		},
		AI: AIConfig{
			APIKey:          viper.GetString("ai.api_key"),
			BaseURL:         viper.GetString("ai.base_url"),
			ExtractorModel:  viper.GetString("ai.extractor_model"),
			ClassifierModel: viper.GetString("ai.classifier_model"),
			DuplicatorModel: viper.GetString("ai.duplicator_model"),
			ExtractTimeout:  viper.GetDuration("ai.extract_timeout"),
			ClassifyTimeout: viper.GetDuration("ai.classify_timeout"),
			VariantTimeout:  viper.GetDuration("ai.variant_timeout"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
			Driver:          viper.GetString("storage.driver"),
			DataDir:         viper.GetString("storage.data_dir"),
		},
		Processing: ProcessingConfig{
			ChunkSize:           viper.GetInt("processing.chunk_size"),
			Overlap:             viper.GetInt("processing.overlap"),
			ChunkTimeout:        viper.GetDuration("processing.chunk_timeout"),
			DocumentTimeout:     viper.GetDuration("processing.document_timeout"),
			BatchTimeout:        viper.GetDuration("processing.batch_timeout"),
			BatchConcurrency:    viper.GetInt("processing.batch_concurrency"),
			StallThreshold:      viper.GetDuration("processing.stall_threshold"),
			CacheTTL:            viper.GetDuration("processing.cache_ttl"),
			PruneAge:            viper.GetDuration("processing.prune_age"),
			CreditsPerChunk:     viper.GetInt("processing.credits_per_chunk"),
			StartingCredits:     viper.GetInt("processing.starting_credits"),
			SimulateMissingJobs: viper.GetBool("processing.simulate_missing_jobs"),
		},
	}

	// Placeholder synthesis is a development convenience only.
	if cfg.Server.IsProduction() {
		cfg.Processing.SimulateMissingJobs = false
	}

	return cfg, nil
}
