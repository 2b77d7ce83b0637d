package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the config at an empty data dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	for _, key := range []string{EnvConfigFile, EnvPort, EnvLogLevel, EnvAPIURL, EnvHeadless,
		EnvPollInterval, EnvPollRate, EnvHTTPTimeout, EnvSampleText} {
		t.Setenv(key, "")
	}
	return dir
}

func TestNew_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.APIURL() != DefaultAPIURL {
		t.Errorf("APIURL() = %q, want %q", cfg.APIURL(), DefaultAPIURL)
	}
	if cfg.SampleText() != "Test pasted text content" {
		t.Errorf("SampleText() = %q", cfg.SampleText())
	}
	if cfg.PollInterval() != 3*time.Second {
		t.Errorf("PollInterval() = %v, want 3s", cfg.PollInterval())
	}
	if cfg.DBPath() != filepath.Join(dir, DBFilename) {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
	if cfg.Headless() {
		t.Error("Headless() should default to false")
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvAPIURL, "https://api.swrite.test")
	t.Setenv(EnvHeadless, "true")
	t.Setenv(EnvPollInterval, "10")
	t.Setenv(EnvPollRate, "0.5")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9999 {
		t.Errorf("Port() = %d, want 9999", cfg.Port())
	}
	if cfg.APIURL() != "https://api.swrite.test" {
		t.Errorf("APIURL() = %q", cfg.APIURL())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
	if cfg.PollInterval() != 10*time.Second {
		t.Errorf("PollInterval() = %v", cfg.PollInterval())
	}
	if cfg.PollRate() != 0.5 {
		t.Errorf("PollRate() = %v", cfg.PollRate())
	}
}

func TestNew_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvPort, "abc"},
		{EnvPort, "70000"},
		{EnvHeadless, "maybe"},
		{EnvPollInterval, "0"},
		{EnvPollRate, "-1"},
		{EnvHTTPTimeout, "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			_, err := New()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}

func TestNew_YAMLFile(t *testing.T) {
	dir := isolate(t)

	yaml := `
port: 8900
api:
  url: https://jobs.example.com
  timeout_seconds: 15
tracking:
  interval_seconds: 7
headless: true
sample_text: hello from yaml
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvPort, "8901")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8901 {
		t.Errorf("env should win over file: Port() = %d", cfg.Port())
	}
	if cfg.APIURL() != "https://jobs.example.com" {
		t.Errorf("APIURL() = %q", cfg.APIURL())
	}
	if cfg.HTTPTimeout() != 15*time.Second {
		t.Errorf("HTTPTimeout() = %v", cfg.HTTPTimeout())
	}
	if cfg.PollInterval() != 7*time.Second {
		t.Errorf("PollInterval() = %v", cfg.PollInterval())
	}
	if !cfg.Headless() {
		t.Error("Headless() = false, want true")
	}
	if cfg.SampleText() != "hello from yaml" {
		t.Errorf("SampleText() = %q", cfg.SampleText())
	}
}

func TestNew_ExplicitConfigFileMissing(t *testing.T) {
	dir := isolate(t)
	t.Setenv(EnvConfigFile, filepath.Join(dir, "nope.yaml"))

	if _, err := New(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestNew_MalformedYAML(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("port: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := New(); err == nil {
		t.Fatal("expected parse error")
	}
}
