package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"COURSEGEN_CONFIG_PATH", "COURSEGEN_API_URL", "COURSEGEN_WS_URL", "COURSEGEN_TOKEN_FILE",
	"COURSEGEN_REQUEST_TIMEOUT", "LOG_MODE", "REDIS_ADDR", "REDIS_CHANNEL", "DEVSERVER_ADDR", "JWT_SECRET_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "coursegen.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL || cfg.API.RequestTimeout.Duration != 0 {
		t.Fatalf("api=%+v", cfg.API)
	}
	if cfg.Notify.RedisChannel != DefaultRedisChannel || cfg.Notify.RedisAddr != "" {
		t.Fatalf("notify=%+v", cfg.Notify)
	}
	if cfg.Env != "development" {
		t.Fatalf("env=%q", cfg.Env)
	}
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("COURSEGEN_CONFIG_PATH", writeConfig(t, `
api:
  base_url: https://courses.example.com/api/v1
  request_timeout: 45s
devserver:
  step_delay: 250000000
`))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://courses.example.com/api/v1" {
		t.Fatalf("base_url=%q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout.Duration != 45*time.Second {
		t.Fatalf("request_timeout=%v", cfg.API.RequestTimeout.Duration)
	}
	if cfg.DevServer.StepDelay.Duration != 250*time.Millisecond {
		t.Fatalf("step_delay=%v", cfg.DevServer.StepDelay.Duration)
	}
	if cfg.DevServer.JobRetention.Duration != 10*time.Minute {
		t.Fatalf("job_retention=%v", cfg.DevServer.JobRetention.Duration)
	}
	if cfg.DevServer.TokenTTL.Duration != 24*time.Hour || cfg.DevServer.Addr != ":8000" {
		t.Fatalf("devserver defaults lost: %+v", cfg.DevServer)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("COURSEGEN_CONFIG_PATH", writeConfig(t, "api:\n  base_url: http://file.test/api/v1\n"))
	t.Setenv("COURSEGEN_API_URL", "http://env.test/api/v1")
	t.Setenv("COURSEGEN_REQUEST_TIMEOUT", "30")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_MODE", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://env.test/api/v1" || cfg.API.RequestTimeout.Duration != 30*time.Second {
		t.Fatalf("api=%+v", cfg.API)
	}
	if cfg.Notify.RedisAddr != "localhost:6379" || cfg.Env != "production" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"scheme":   "api:\n  base_url: ftp://x/api/v1\n",
		"ws":       "api:\n  ws_url: http://x/api/v1\n",
		"duration": "api:\n  request_timeout: soon\n",
		"ttl":      "devserver:\n  token_ttl: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("COURSEGEN_CONFIG_PATH", writeConfig(t, body))
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}

func TestMissingFileIsAnError(t *testing.T) {
	clearEnv(t)
	t.Setenv("COURSEGEN_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "absent.yaml") {
		t.Fatalf("err=%v", err)
	}
}
