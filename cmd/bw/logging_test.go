package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/baywatch/internal/config"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"WARN", false, false},
		{"error", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := config.Default()
			cfg.LogLevel = tt.level
			var buf bytes.Buffer
			logger, closer, err := newLogger(cfg, &buf)
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			defer closer.Close()

			logger.Debug("debug line")
			logger.Info("info line")
			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "info line"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	if _, _, err := newLogger(cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewLogger_JSON(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"
	var buf bytes.Buffer
	logger, closer, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closer.Close()

	logger.Info("session opened", "session", "ds-1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "session opened" || rec["session"] != "ds-1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bw.log")
	cfg := config.Default()
	cfg.LogFile = path
	var buf bytes.Buffer
	logger, closer, err := newLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file missing record: %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stderr missing record: %q", buf.String())
	}
}

func TestNewLogger_FileError(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "missing", "bw.log")
	if _, _, err := newLogger(cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}
