package config

import (
	"log"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"comic-server/pkg/logger"
)

// Config holds the whole application configuration.
type Config struct {
	AppEnv     string `env:"APP_ENV" env-default:"development"`
	ServerPort string `env:"SERVER_PORT" env-default:"8080"`

	Logger    logger.Config
	Provider  ProviderConfig
	RateLimit RateLimitConfig
	Safety    SafetyConfig

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
}

// ProviderConfig configures the external generative model provider.
// An empty APIKey puts the adapter into degraded/synthetic mode.
type ProviderConfig struct {
	APIKey        string `env:"PROVIDER_API_KEY" env-default:""`
	BaseURL       string `env:"PROVIDER_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	Model         string `env:"PROVIDER_MODEL" env-default:"deepseek/deepseek-chat-v3-0324:free"`
	FallbackModel string `env:"PROVIDER_FALLBACK_MODEL" env-default:"meta-llama/llama-3.3-70b-instruct:free"`
	ImageModel    string `env:"PROVIDER_IMAGE_MODEL" env-default:"dall-e-3"`
	TimeoutSec    int    `env:"PROVIDER_TIMEOUT_SEC" env-default:"30"`
	MaxRetries    int    `env:"PROVIDER_MAX_RETRIES" env-default:"2"`
}

// RateLimitConfig configures the fixed-window admission controller.
// Ceilings are the production values; the development profile multiplies
// them by DevMultiplier.
type RateLimitConfig struct {
	WindowMS         int64  `env:"RATE_LIMIT_WINDOW_MS" env-default:"60000"`
	ScriptCeiling    int    `env:"RATE_LIMIT_SCRIPT_CEILING" env-default:"10"`
	ImageCeiling     int    `env:"RATE_LIMIT_IMAGE_CEILING" env-default:"5"`
	DevMultiplier    int    `env:"RATE_LIMIT_DEV_MULTIPLIER" env-default:"10"`
	SweepIntervalSec int    `env:"RATE_LIMIT_SWEEP_INTERVAL_SEC" env-default:"60"`
	RedisAddr        string `env:"RATE_LIMIT_REDIS_ADDR" env-default:""`
	RedisPassword    string `env:"RATE_LIMIT_REDIS_PASSWORD" env-default:""`
	RedisDB          int    `env:"RATE_LIMIT_REDIS_DB" env-default:"0"`
}

// SafetyConfig configures the rule-based evaluators.
type SafetyConfig struct {
	MinSceneWords int `env:"SAFETY_MIN_SCENE_WORDS" env-default:"3"`
	MaxSceneWords int `env:"SAFETY_MAX_SCENE_WORDS" env-default:"20"`
	PassThreshold int `env:"SAFETY_PASS_THRESHOLD" env-default:"70"`
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	return &cfg
}

// IsProduction reports whether the production deployment profile is active.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

// Window returns the admission window length.
func (c *Config) Window() time.Duration {
	return time.Duration(c.RateLimit.WindowMS) * time.Millisecond
}

// SweepInterval returns the quota sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RateLimit.SweepIntervalSec) * time.Second
}

// ScriptCeiling returns the script-stage ceiling for the active profile.
func (c *Config) ScriptCeiling() int {
	return c.ceiling(c.RateLimit.ScriptCeiling)
}

// ImageCeiling returns the image-stage ceiling for the active profile.
func (c *Config) ImageCeiling() int {
	return c.ceiling(c.RateLimit.ImageCeiling)
}

func (c *Config) ceiling(base int) int {
	if c.IsProduction() {
		return base
	}
	mult := c.RateLimit.DevMultiplier
	if mult < 1 {
		mult = 1
	}
	return base * mult
}

// AllowedOrigins splits the CORS origins string into a slice.
func (c *Config) AllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(c.CORSAllowedOrigins, " ", ""), ",")
}
