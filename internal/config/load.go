package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursegen/internal/platform/envutil"
)

const (
	DefaultBaseURL      = "http://localhost:8000/api/v1"
	DefaultRedisChannel = "coursegen.notifications"
)

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got yaml kind %d", node.Kind)
	}
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n)
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.Duration.String(), nil }

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		API: APIConfig{BaseURL: DefaultBaseURL},
		Notify: NotifyConfig{
			RedisChannel: DefaultRedisChannel,
		},
		DevServer: DevServerConfig{
			Addr:           ":8000",
			JWTSecret:      "coursegen-dev-secret",
			TokenTTL:       Duration{Duration: 24 * time.Hour},
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			StepDelay:      Duration{Duration: 500 * time.Millisecond},
			JobRetention:   Duration{Duration: 10 * time.Minute},
			Users:          map[string]string{"demo": "demo"},
		},
	}
}

// Load reads defaults, then the YAML file at COURSEGEN_CONFIG_PATH (or
// ./config/coursegen.yaml when present), then environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("COURSEGEN_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "coursegen.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		// Decoding over the defaults keeps any key the file leaves out.
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	cfg.API.BaseURL = envutil.String("COURSEGEN_API_URL", cfg.API.BaseURL)
	cfg.API.WSURL = envutil.String("COURSEGEN_WS_URL", cfg.API.WSURL)
	cfg.API.RequestTimeout.Duration = envutil.Duration("COURSEGEN_REQUEST_TIMEOUT", cfg.API.RequestTimeout.Duration)
	cfg.Auth.TokenFile = envutil.String("COURSEGEN_TOKEN_FILE", cfg.Auth.TokenFile)
	cfg.Notify.RedisAddr = envutil.String("REDIS_ADDR", cfg.Notify.RedisAddr)
	cfg.Notify.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.Notify.RedisChannel)
	cfg.DevServer.Addr = envutil.String("DEVSERVER_ADDR", cfg.DevServer.Addr)
	cfg.DevServer.JWTSecret = envutil.String("JWT_SECRET_KEY", cfg.DevServer.JWTSecret)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if err := checkURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	c.API.WSURL = strings.TrimSpace(c.API.WSURL)
	if c.API.WSURL != "" {
		if err := checkURL("api.ws_url", c.API.WSURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if c.API.RequestTimeout.Duration < 0 {
		return errors.New("api.request_timeout must not be negative")
	}
	if strings.TrimSpace(c.Notify.RedisChannel) == "" {
		c.Notify.RedisChannel = DefaultRedisChannel
	}
	if c.DevServer.TokenTTL.Duration <= 0 {
		return errors.New("devserver.token_ttl must be positive")
	}
	if c.DevServer.StepDelay.Duration < 0 {
		return errors.New("devserver.step_delay must not be negative")
	}
	if c.DevServer.JobRetention.Duration < 0 {
		return errors.New("devserver.job_retention must not be negative")
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be an absolute %s url, got %q", field, strings.Join(schemes, "/"), raw)
}
