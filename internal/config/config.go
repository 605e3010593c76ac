package config

import "time"

type Duration struct {
	Duration time.Duration
}

type APIConfig struct {
	// BaseURL already includes the /api/v1 prefix.
	BaseURL string `yaml:"base_url"`

	// WSURL overrides the websocket base. Derived from BaseURL when empty.
	WSURL string `yaml:"ws_url,omitempty"`

	// RequestTimeout bounds each HTTP request. Zero means no timeout.
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`
}

type AuthConfig struct {
	// TokenFile persists the bearer token between CLI runs. Empty keeps it in memory.
	TokenFile string `yaml:"token_file,omitempty"`
}

type NotifyConfig struct {
	RedisAddr    string `yaml:"redis_addr,omitempty"`
	RedisChannel string `yaml:"redis_channel,omitempty"`
}

type DevServerConfig struct {
	Addr           string   `yaml:"addr"`
	JWTSecret      string   `yaml:"jwt_secret"`
	TokenTTL       Duration `yaml:"token_ttl"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// Users maps login names to passwords. Development only.
	Users map[string]string `yaml:"users,omitempty"`

	// StepDelay paces simulated batch progress events.
	StepDelay Duration `yaml:"step_delay"`
	// JobRetention is how long a finished batch stays streamable.
	JobRetention Duration `yaml:"job_retention"`
}

type Config struct {
	Env       string          `yaml:"env"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Notify    NotifyConfig    `yaml:"notify"`
	DevServer DevServerConfig `yaml:"devserver"`
}
