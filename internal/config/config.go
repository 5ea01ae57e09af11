package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

const (
	ScorerRandom = "random"
	ScorerGemini = "gemini"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`

	TotalRounds  int           `env:"TOTAL_ROUNDS" envDefault:"3"`
	MaxPlayers   int           `env:"MAX_PLAYERS" envDefault:"8"`
	RoundTimeout time.Duration `env:"ROUND_TIMEOUT" envDefault:"0s"`
	PromptsFile  string        `env:"PROMPTS_FILE"`

	Scorer           string        `env:"SCORER" envDefault:"random"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY"`
	GeminiModel      string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiEndpoint   string        `env:"GEMINI_ENDPOINT"` // empty uses the public API
	ScoreTimeout     time.Duration `env:"SCORE_TIMEOUT" envDefault:"20s"`
	ScoreConcurrency int           `env:"SCORE_CONCURRENCY" envDefault:"4"`

	DatabaseURL    string        `env:"DATABASE_URL"`
	PublicURL      string        `env:"PUBLIC_URL"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	PingInterval   time.Duration `env:"PING_INTERVAL" envDefault:"20s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// Load reads envFile into the process environment, when it exists, and
// parses the environment. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// Parse reads configuration from the given variables only.
func Parse(environ map[string]string) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.TotalRounds < 1 {
		errs = append(errs, fmt.Errorf("TOTAL_ROUNDS must be at least 1, got %d", c.TotalRounds))
	}
	if c.MaxPlayers < 1 {
		errs = append(errs, fmt.Errorf("MAX_PLAYERS must be at least 1, got %d", c.MaxPlayers))
	}
	if c.RoundTimeout < 0 {
		errs = append(errs, errors.New("ROUND_TIMEOUT must not be negative"))
	}
	switch c.Scorer {
	case ScorerRandom:
	case ScorerGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when SCORER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("SCORER must be %q or %q, got %q", ScorerRandom, ScorerGemini, c.Scorer))
	}
	if c.ScoreConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SCORE_CONCURRENCY must be at least 1, got %d", c.ScoreConcurrency))
	}
	return multierr.Combine(errs...)
}
