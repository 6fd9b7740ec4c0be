// Package config loads the YAML service configuration and overlays the
// secret material from the environment. Secrets never live in the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// BaseURL is this service as seen from outside; OAuth redirect
		// URIs and email links are built from it.
		BaseURL string `yaml:"base_url"`
		// LoginURL is the application's own login page, target of the
		// OAuth callback redirect (success or error).
		LoginURL string `yaml:"login_url"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // "memory" | "postgres"
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		Driver string `yaml:"driver"` // "memory" | "redis"
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"-"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT struct {
		// Secret comes from IDENTITY_JWT_SECRET only.
		Secret string `yaml:"-"`
	} `yaml:"jwt"`

	Providers struct {
		Google struct {
			Enabled      bool   `yaml:"enabled"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"-"`
		} `yaml:"google"`
		Facebook struct {
			Enabled      bool   `yaml:"enabled"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"-"`
		} `yaml:"facebook"`
		Apple struct {
			Enabled       bool   `yaml:"enabled"`
			TeamID        string `yaml:"team_id"`
			ServiceID     string `yaml:"service_id"`
			KeyID         string `yaml:"key_id"`
			PrivateKeyPEM string `yaml:"-"`
		} `yaml:"apple"`
	} `yaml:"providers"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"-"`
		From               string `yaml:"from"`
		StartTLS           bool   `yaml:"starttls"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // dev only
	} `yaml:"smtp"`

	Auth struct {
		ResetTTL  time.Duration `yaml:"reset_ttl"`
		VerifyTTL time.Duration `yaml:"verify_ttl"`
	} `yaml:"auth"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"login"`
		Forgot struct {
			Limit  int           `yaml:"limit"`
			Window time.Duration `yaml:"window"`
		} `yaml:"forgot"`
	} `yaml:"rate"`
}

// Load reads the YAML file (optional: an empty path yields defaults), applies
// env overrides and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost" + c.Server.Addr
	}
	if c.Server.LoginURL == "" {
		c.Server.LoginURL = c.Server.BaseURL + "/login"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = 30 * time.Minute
	}
	if c.Auth.VerifyTTL == 0 {
		c.Auth.VerifyTTL = 24 * time.Hour
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == 0 {
		c.Rate.Login.Window = time.Minute
	}
	if c.Rate.Forgot.Limit == 0 {
		c.Rate.Forgot.Limit = 5
	}
	if c.Rate.Forgot.Window == 0 {
		c.Rate.Forgot.Window = 10 * time.Minute
	}

	c.applyEnv()

	if c.JWT.Secret == "" {
		return nil, fmt.Errorf("config: IDENTITY_JWT_SECRET is required")
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v, ok := getEnvStr("IDENTITY_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("IDENTITY_BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvStr("IDENTITY_JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("IDENTITY_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("IDENTITY_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.Providers.Google.ClientID = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_SECRET"); ok {
		c.Providers.Google.ClientSecret = v
	}
	if v, ok := getEnvStr("FACEBOOK_CLIENT_ID"); ok {
		c.Providers.Facebook.ClientID = v
	}
	if v, ok := getEnvStr("FACEBOOK_CLIENT_SECRET"); ok {
		c.Providers.Facebook.ClientSecret = v
	}
	if v, ok := getEnvStr("APPLE_TEAM_ID"); ok {
		c.Providers.Apple.TeamID = v
	}
	if v, ok := getEnvStr("APPLE_SERVICE_ID"); ok {
		c.Providers.Apple.ServiceID = v
	}
	if v, ok := getEnvStr("APPLE_KEY_ID"); ok {
		c.Providers.Apple.KeyID = v
	}
	if v, ok := getEnvStr("APPLE_PRIVATE_KEY"); ok {
		c.Providers.Apple.PrivateKeyPEM = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}
