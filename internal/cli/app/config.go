package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/bouncer/pkg/httpx"
)

var validate = validator.New()

// Config drives the CLI. Values load lowest-priority first: built-in
// defaults, then the YAML config file, then environment variables.
type Config struct {
	// Provider. Either Issuer (endpoints discovered) or both explicit
	// endpoints.
	Issuer                string   `yaml:"issuer" validate:"omitempty,url"`
	ClientID              string   `yaml:"client_id" validate:"required"`
	AuthorizationEndpoint string   `yaml:"authorization_endpoint" validate:"required_without=Issuer,omitempty,url"`
	TokenEndpoint         string   `yaml:"token_endpoint" validate:"required_without=Issuer,omitempty,url"`
	JWKSURI               string   `yaml:"jwks_uri" validate:"omitempty,url"`
	Scopes                []string `yaml:"scopes"`

	// CallbackPort is where the loopback listener catches the redirect.
	CallbackPort int    `yaml:"callback_port" validate:"gt=0,lte=65535"`
	CallbackPath string `yaml:"callback_path"`

	// LoginTimeout bounds how long `login` waits for the browser to come
	// back.
	LoginTimeout time.Duration `yaml:"login_timeout"`

	// Storage.
	DatabaseFile  string `yaml:"database_file" validate:"required"`
	MasterKeyFile string `yaml:"master_key_file" validate:"required"`

	// PresenceDir, when set, announces this app's session as a marker file
	// and lets HasAnySession see sibling apps' markers.
	PresenceDir string `yaml:"presence_dir"`

	// HTTPTimeout bounds token endpoint, discovery and JWKS calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`
}

func defaultConfig() Config {
	return Config{
		CallbackPort:  8912,
		CallbackPath:  "/callback",
		LoginTimeout:  5 * time.Minute,
		DatabaseFile:  "bouncer.db",
		MasterKeyFile: "bouncer.key",
		HTTPTimeout:   10 * time.Second,
		Env:           "dev",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// LoadConfig assembles the CLI configuration. A missing .env or YAML file
// is fine; a present but unreadable one is not.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	path := getEnvOrDefault("BOUNCER_CONFIG", "bouncer.yaml")
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Issuer = getEnvOrDefault("BOUNCER_ISSUER", cfg.Issuer)
	cfg.ClientID = getEnvOrDefault("BOUNCER_CLIENT_ID", cfg.ClientID)
	cfg.AuthorizationEndpoint = getEnvOrDefault("BOUNCER_AUTHORIZATION_ENDPOINT", cfg.AuthorizationEndpoint)
	cfg.TokenEndpoint = getEnvOrDefault("BOUNCER_TOKEN_ENDPOINT", cfg.TokenEndpoint)
	cfg.JWKSURI = getEnvOrDefault("BOUNCER_JWKS_URI", cfg.JWKSURI)

	// Scope lists are space delimited, same as on the wire.
	if scopes := httpx.ParseSpaceDelimitedFields(os.Getenv("BOUNCER_SCOPES")); scopes != nil {
		cfg.Scopes = scopes
	}

	cfg.CallbackPort = getEnvIntOrDefault("BOUNCER_CALLBACK_PORT", cfg.CallbackPort)
	cfg.CallbackPath = getEnvOrDefault("BOUNCER_CALLBACK_PATH", cfg.CallbackPath)
	cfg.LoginTimeout = getEnvDurationOrDefault("BOUNCER_LOGIN_TIMEOUT", cfg.LoginTimeout)

	cfg.DatabaseFile = getEnvOrDefault("BOUNCER_DATABASE_FILE", cfg.DatabaseFile)
	cfg.MasterKeyFile = getEnvOrDefault("BOUNCER_MASTER_KEY_FILE", cfg.MasterKeyFile)
	cfg.PresenceDir = getEnvOrDefault("BOUNCER_PRESENCE_DIR", cfg.PresenceDir)

	cfg.HTTPTimeout = getEnvDurationOrDefault("BOUNCER_HTTP_TIMEOUT", cfg.HTTPTimeout)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
}

// RedirectURI is the loopback URL the provider redirects back to.
func (c Config) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", c.CallbackPort, c.CallbackPath)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
