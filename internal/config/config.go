// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrMissingAPIKey means neither GOOGLE_API_KEY nor its secret file is set.
var ErrMissingAPIKey = errors.New("GOOGLE_API_KEY is not set and no secret file was found")

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds runtime settings.
type Config struct {
	HTTPAddr           string   `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	GoogleAPIKey string `envconfig:"GOOGLE_API_KEY"`
	SecretsDir   string `envconfig:"SECRETS_DIR" default:"/run/secrets"`
	APIKeySecret string `envconfig:"GOOGLE_API_KEY_SECRET" default:"google_api_key"`

	CardModel   string  `envconfig:"CARD_MODEL" default:"gemini-2.0-flash"`
	StoryModel  string  `envconfig:"STORY_MODEL" default:"gemini-2.0-flash"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"1.0"`

	StoryProvider string `envconfig:"STORY_PROVIDER" default:"gemini"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	TTSLanguage     string  `envconfig:"TTS_LANGUAGE" default:"ko-KR"`
	TTSVoice        string  `envconfig:"TTS_VOICE"`
	TTSSpeakingRate float64 `envconfig:"TTS_SPEAKING_RATE" default:"1.0"`

	SessionTTL              time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	GenerationRatePerMinute int           `envconfig:"GENERATION_RATE_PER_MINUTE" default:"0"`
	MaxImages               int           `envconfig:"MAX_IMAGES" default:"20"`
	MaxUploadMB             int64         `envconfig:"MAX_UPLOAD_MB" default:"20"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Load reads .env and env vars, applies defaults, and resolves the API key.
// A missing API key is not an error here; callers check RequireAPIKey.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}

	cfg.GoogleAPIKey = strings.TrimSpace(cfg.GoogleAPIKey)
	if cfg.GoogleAPIKey == "" {
		if secret, err := ReadSecret(cfg.SecretsDir, cfg.APIKeySecret); err == nil {
			cfg.GoogleAPIKey = secret
		}
	}

	cfg.StoryProvider = strings.ToLower(strings.TrimSpace(cfg.StoryProvider))
	switch cfg.StoryProvider {
	case ProviderGemini, "":
		cfg.StoryProvider = ProviderGemini
	case ProviderOpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return Config{}, fmt.Errorf("OPENAI_API_KEY is required when STORY_PROVIDER=openai")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORY_PROVIDER %q", cfg.StoryProvider)
	}

	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 20
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	return cfg, nil
}

// RequireAPIKey reports ErrMissingAPIKey when no credential was resolved.
func (c Config) RequireAPIKey() error {
	if c.GoogleAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// ArchiveEnabled reports whether completed storybooks are persisted.
func (c Config) ArchiveEnabled() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// ReadSecret reads a Docker-style secret file from dir.
func ReadSecret(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("secret name is empty")
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}
