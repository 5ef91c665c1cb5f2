package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	Auth       AuthConfig
	Gateway    GatewayConfig
	RateLimit  RateLimitConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Words      WordLimits
	Backoff    BackoffConfig
	Pacing     PacingConfig
	Checkpoint CheckpointConfig
	Catalog    CatalogConfig
	R2         R2Config
	Export     ExportConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// AuthConfig enables OIDC token verification when Issuer is set.
type AuthConfig struct {
	Issuer   string
	ClientID string
}

type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	JobsPerHour int
}

// LLMConfig describes the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	ModelJunior string
	ModelSenior string
	ModelCritic string
	TempJunior  float64
	TempSenior  float64
	TempCritic  float64
	MaxTokens   int
	Timeout     time.Duration
}

type GenerationConfig struct {
	ChunkSize           int
	QuestionsPerLevel   int
	SoftSkillsCount     int
	MaxAttempts         int
	MaxChunkRetries     int
	MaxCriticRetries    int
	SimpleCriticRetries int
	JobTimeout          time.Duration
	CancelPollInterval  time.Duration
	WorkerConcurrency   int

	// FinalReview sends each finished career/level quiz through one more critic pass
	FinalReview   bool
	ReviewRetries int
}

// WordLimits bounds the free-text fields of a generated question.
type WordLimits struct {
	QuestionMin    int
	QuestionMax    int
	OptionMin      int
	OptionMax      int
	RationaleMax   int
	ExplanationMin int
	ExplanationMax int
}

type BackoffConfig struct {
	Base         float64
	Ceiling      time.Duration
	Jitter       time.Duration
	QuotaMin     time.Duration
	QuotaMax     time.Duration
	AdaptiveStep float64
}

type PacingConfig struct {
	BetweenChunks time.Duration
	AfterSuccess  time.Duration
	AfterError    time.Duration
}

// CheckpointConfig selects the durable backend for completed work units.
// Backend is one of: file, redis, sql, object, memory.
type CheckpointConfig struct {
	Backend      string
	Path         string
	PartialDir   string
	SQLDriver    string
	SQLDSN       string
	RedisKey     string
	ObjectPrefix string
}

type CatalogConfig struct {
	Path string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Endpoint        string
}

type ExportConfig struct {
	Enabled bool
	Prefix  string
}

// DefaultWordLimits are the bounds used by the question schema.
func DefaultWordLimits() WordLimits {
	return WordLimits{
		QuestionMin:    12,
		QuestionMax:    28,
		OptionMin:      10,
		OptionMax:      24,
		RationaleMax:   30,
		ExplanationMin: 15,
		ExplanationMax: 50,
	}
}

func Load() (*Config, error) {
	// Local development convenience; a missing .env is not an error
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("LLM_API_KEY")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("CHECKPOINT_SQL_DSN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("auth.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("auth.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model_junior", "LLM_MODEL_JUNIOR")
	_ = viper.BindEnv("llm.model_senior", "LLM_MODEL_SENIOR")
	_ = viper.BindEnv("llm.model_critic", "LLM_MODEL_CRITIC")
	_ = viper.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = viper.BindEnv("generation.chunk_size", "GENERATION_CHUNK_SIZE")
	_ = viper.BindEnv("generation.max_attempts", "GENERATION_MAX_ATTEMPTS")
	_ = viper.BindEnv("generation.max_chunk_retries", "GENERATION_MAX_CHUNK_RETRIES")
	_ = viper.BindEnv("generation.max_critic_retries", "GENERATION_MAX_CRITIC_RETRIES")
	_ = viper.BindEnv("generation.worker_concurrency", "GENERATION_WORKER_CONCURRENCY")
	_ = viper.BindEnv("generation.final_review", "GENERATION_FINAL_REVIEW")
	_ = viper.BindEnv("backoff.base", "BACKOFF_BASE")
	_ = viper.BindEnv("backoff.ceiling", "BACKOFF_CEILING")
	_ = viper.BindEnv("backoff.jitter", "BACKOFF_JITTER")
	_ = viper.BindEnv("backoff.quota_min", "BACKOFF_QUOTA_MIN")
	_ = viper.BindEnv("backoff.quota_max", "BACKOFF_QUOTA_MAX")
	_ = viper.BindEnv("pacing.between_chunks", "PACING_BETWEEN_CHUNKS")
	_ = viper.BindEnv("pacing.after_success", "PACING_AFTER_SUCCESS")
	_ = viper.BindEnv("pacing.after_error", "PACING_AFTER_ERROR")
	_ = viper.BindEnv("checkpoint.backend", "CHECKPOINT_BACKEND")
	_ = viper.BindEnv("checkpoint.path", "CHECKPOINT_PATH")
	_ = viper.BindEnv("checkpoint.partial_dir", "CHECKPOINT_PARTIAL_DIR")
	_ = viper.BindEnv("checkpoint.sql_driver", "CHECKPOINT_SQL_DRIVER")
	_ = viper.BindEnv("checkpoint.sql_dsn", "CHECKPOINT_SQL_DSN")
	_ = viper.BindEnv("catalog.path", "CATALOG_PATH")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = viper.BindEnv("export.enabled", "EXPORT_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.jobs_per_hour", 20)

	// LLM defaults (Groq, OpenAI-compatible)
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model_junior", "llama-3.1-8b-instant")
	viper.SetDefault("llm.model_senior", "llama-3.3-70b-versatile")
	viper.SetDefault("llm.model_critic", "llama-3.3-70b-versatile")
	viper.SetDefault("llm.temp_junior", 0.6)
	viper.SetDefault("llm.temp_senior", 0.4)
	viper.SetDefault("llm.temp_critic", 0.3)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.timeout", 180*time.Second)

	// Generation defaults
	viper.SetDefault("generation.chunk_size", 5)
	viper.SetDefault("generation.questions_per_level", 20)
	viper.SetDefault("generation.soft_skills_count", 20)
	viper.SetDefault("generation.max_attempts", 3)
	viper.SetDefault("generation.max_chunk_retries", 3)
	viper.SetDefault("generation.max_critic_retries", 2)
	viper.SetDefault("generation.simple_critic_retries", 1)
	viper.SetDefault("generation.job_timeout", 24*time.Hour)
	viper.SetDefault("generation.cancel_poll_interval", 2*time.Second)
	viper.SetDefault("generation.worker_concurrency", 2)
	viper.SetDefault("generation.final_review", false)
	viper.SetDefault("generation.review_retries", 2)

	words := DefaultWordLimits()
	viper.SetDefault("words.question_min", words.QuestionMin)
	viper.SetDefault("words.question_max", words.QuestionMax)
	viper.SetDefault("words.option_min", words.OptionMin)
	viper.SetDefault("words.option_max", words.OptionMax)
	viper.SetDefault("words.rationale_max", words.RationaleMax)
	viper.SetDefault("words.explanation_min", words.ExplanationMin)
	viper.SetDefault("words.explanation_max", words.ExplanationMax)

	viper.SetDefault("backoff.base", 2.0)
	viper.SetDefault("backoff.ceiling", 60*time.Second)
	viper.SetDefault("backoff.jitter", 2*time.Second)
	viper.SetDefault("backoff.quota_min", 30*time.Second)
	viper.SetDefault("backoff.quota_max", 60*time.Second)
	viper.SetDefault("backoff.adaptive_step", 0.5)

	viper.SetDefault("pacing.between_chunks", 2*time.Second)
	viper.SetDefault("pacing.after_success", 1*time.Second)
	viper.SetDefault("pacing.after_error", 3*time.Second)

	// Checkpoint defaults
	viper.SetDefault("checkpoint.backend", "file")
	viper.SetDefault("checkpoint.path", "./data/checkpoints.jsonl")
	viper.SetDefault("checkpoint.partial_dir", "./data/partial")
	viper.SetDefault("checkpoint.sql_driver", "sqlite3")
	viper.SetDefault("checkpoint.sql_dsn", "./data/checkpoints.db")
	viper.SetDefault("checkpoint.redis_key", "quizgen:checkpoints")
	viper.SetDefault("checkpoint.object_prefix", "checkpoints")

	viper.SetDefault("export.enabled", false)
	viper.SetDefault("export.prefix", "exports")

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
			Secret: viper.GetString("jwt.secret"),
		},
		Auth: AuthConfig{
			Issuer:   viper.GetString("auth.issuer"),
			ClientID: viper.GetString("auth.client_id"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour: viper.GetInt("ratelimit.jobs_per_hour"),
		},
		LLM: LLMConfig{
			APIKey:      viper.GetString("llm.api_key"),
			BaseURL:     viper.GetString("llm.base_url"),
			ModelJunior: viper.GetString("llm.model_junior"),
			ModelSenior: viper.GetString("llm.model_senior"),
			ModelCritic: viper.GetString("llm.model_critic"),
			TempJunior:  viper.GetFloat64("llm.temp_junior"),
			TempSenior:  viper.GetFloat64("llm.temp_senior"),
			TempCritic:  viper.GetFloat64("llm.temp_critic"),
			MaxTokens:   viper.GetInt("llm.max_tokens"),
			Timeout:     viper.GetDuration("llm.timeout"),
		},
		Generation: GenerationConfig{
			ChunkSize:           viper.GetInt("generation.chunk_size"),
			QuestionsPerLevel:   viper.GetInt("generation.questions_per_level"),
			SoftSkillsCount:     viper.GetInt("generation.soft_skills_count"),
			MaxAttempts:         viper.GetInt("generation.max_attempts"),
			MaxChunkRetries:     viper.GetInt("generation.max_chunk_retries"),
			MaxCriticRetries:    viper.GetInt("generation.max_critic_retries"),
			SimpleCriticRetries: viper.GetInt("generation.simple_critic_retries"),
			JobTimeout:          viper.GetDuration("generation.job_timeout"),
			CancelPollInterval:  viper.GetDuration("generation.cancel_poll_interval"),
			WorkerConcurrency:   viper.GetInt("generation.worker_concurrency"),
			FinalReview:         viper.GetBool("generation.final_review"),
			ReviewRetries:       viper.GetInt("generation.review_retries"),
		},
		Words: WordLimits{
			QuestionMin:    viper.GetInt("words.question_min"),
			QuestionMax:    viper.GetInt("words.question_max"),
			OptionMin:      viper.GetInt("words.option_min"),
			OptionMax:      viper.GetInt("words.option_max"),
			RationaleMax:   viper.GetInt("words.rationale_max"),
			ExplanationMin: viper.GetInt("words.explanation_min"),
			ExplanationMax: viper.GetInt("words.explanation_max"),
		},
		Backoff: BackoffConfig{
			Base:         viper.GetFloat64("backoff.base"),
			Ceiling:      viper.GetDuration("backoff.ceiling"),
			Jitter:       viper.GetDuration("backoff.jitter"),
			QuotaMin:     viper.GetDuration("backoff.quota_min"),
			QuotaMax:     viper.GetDuration("backoff.quota_max"),
			AdaptiveStep: viper.GetFloat64("backoff.adaptive_step"),
		},
		Pacing: PacingConfig{
			BetweenChunks: viper.GetDuration("pacing.between_chunks"),
			AfterSuccess:  viper.GetDuration("pacing.after_success"),
			AfterError:    viper.GetDuration("pacing.after_error"),
		},
		Checkpoint: CheckpointConfig{
			Backend:      viper.GetString("checkpoint.backend"),
			Path:         viper.GetString("checkpoint.path"),
			PartialDir:   viper.GetString("checkpoint.partial_dir"),
			SQLDriver:    viper.GetString("checkpoint.sql_driver"),
			SQLDSN:       viper.GetString("checkpoint.sql_dsn"),
			RedisKey:     viper.GetString("checkpoint.redis_key"),
			ObjectPrefix: viper.GetString("checkpoint.object_prefix"),
		},
		Catalog: CatalogConfig{
			Path: viper.GetString("catalog.path"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			Endpoint:        viper.GetString("r2.endpoint"),
		},
		Export: ExportConfig{
			Enabled: viper.GetBool("export.enabled"),
			Prefix:  viper.GetString("export.prefix"),
		},
	}

	return cfg, nil
}
