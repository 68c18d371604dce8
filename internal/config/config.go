// Package config loads the mirror configuration from an optional YAML file, an optional env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MAILMIRROR"

type OAuth struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenFile    string `mapstructure:"token_file"`
	// RedirectURL overrides the callback derived from the HTTP listener.
	RedirectURL string `mapstructure:"redirect_url"`
}

type Sync struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaxResults      int           `mapstructure:"max_results"`
	DraftMaxResults int           `mapstructure:"draft_max_results"`
	// PollEvery enables periodic background syncs when positive.
	PollEvery time.Duration `mapstructure:"poll_every"`
}

type Provider struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type Classifier struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Config is the top-level configuration.
type Config struct {
	DBPath         string     `mapstructure:"db_path"`
	HTTPAddr       string     `mapstructure:"http_addr"`
	LocalUserEmail string     `mapstructure:"local_user_email"`
	OAuth          OAuth      `mapstructure:"oauth"`
	Sync           Sync       `mapstructure:"sync"`
	Provider       Provider   `mapstructure:"provider"`
	Classifier     Classifier `mapstructure:"classifier"`
	Log            Log        `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "./data/mailmirror.sqlite")
	v.SetDefault("http_addr", "localhost:0")
	v.SetDefault("local_user_email", "you@example.com")

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.token_file", "./data/mailmirror-token.json")
	v.SetDefault("oauth.redirect_url", "")

	v.SetDefault("sync.interval", 20*time.Second)
	v.SetDefault("sync.max_results", 25)
	v.SetDefault("sync.draft_max_results", 50)
	v.SetDefault("sync.poll_every", time.Duration(0))

	v.SetDefault("provider.request_timeout", 30*time.Second)
	v.SetDefault("provider.requests_per_second", 5.0)
	v.SetDefault("provider.burst", 10)

	v.SetDefault("classifier.base_url", "https://router.huggingface.co/v1")
	v.SetDefault("classifier.model", "Qwen/Qwen2.5-14B-Instruct")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.timeout", 25*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// Load reads envFile into the process environment when given, then the YAML file at path when it
// exists, then MAILMIRROR_* variables. Later sources win.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("godotenv.Load failed: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("oauth.client_id", envPrefix+"_OAUTH_CLIENT_ID", "OAUTH_GOOGLE_CLIENT_ID"); err != nil {
		return nil, fmt.Errorf("v.BindEnv failed: %w", err)
	}
	if err := v.BindEnv("oauth.client_secret", envPrefix+"_OAUTH_CLIENT_SECRET", "OAUTH_GOOGLE_CLIENT_SECRET"); err != nil {
		return nil, fmt.Errorf("v.BindEnv failed: %w", err)
	}
	if err := v.BindEnv("classifier.api_key", envPrefix+"_CLASSIFIER_API_KEY", "QWEN_API_KEY", "HF_TOKEN"); err != nil {
		return nil, fmt.Errorf("v.BindEnv failed: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path must be set"))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, errors.New("sync.interval must not be negative"))
	}
	if c.Sync.MaxResults < 1 {
		errs = append(errs, errors.New("sync.max_results must be positive"))
	}
	if c.Sync.DraftMaxResults < 1 {
		errs = append(errs, errors.New("sync.draft_max_results must be positive"))
	}
	if c.Provider.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("provider.requests_per_second must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// OAuthConfigured reports whether Google OAuth client credentials are present.
func (c *Config) OAuthConfigured() bool {
	return c.OAuth.ClientID != "" && c.OAuth.ClientSecret != ""
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}
