package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerTo_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithJobID(WithComponent(NewLoggerTo(&buf, "info"), "submit"), "J1")

	logger.Debug("hidden")
	logger.Info("job created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not a single JSON line: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "job created" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "submit" || entry["job_id"] != "J1" {
		t.Errorf("attrs = %v", entry)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("SanitizeToken(long) = %q", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := SanitizePath(filepath.Join(home, "docs", "resume.pdf"))
	want := "~" + string(filepath.Separator) + filepath.Join("docs", "resume.pdf")
	if got != want {
		t.Errorf("SanitizePath() = %q, want %q", got, want)
	}
	if got := SanitizePath("/elsewhere/file.pdf"); got != "/elsewhere/file.pdf" && home != "/" {
		t.Errorf("SanitizePath(outside) = %q", got)
	}
}
