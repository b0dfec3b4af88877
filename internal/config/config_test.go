package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

// envVars lists every variable applyEnv reads, cleared between tests.
var envVars = []string{
	"BAYWATCH_TARGET_LABEL", "BAYWATCH_CONFIDENCE_THRESHOLD", "BAYWATCH_BUFFER_WINDOW",
	"BAYWATCH_DEDUP_SWEEP_INTERVAL", "BAYWATCH_READER_ADDR", "BAYWATCH_READER_MARKER",
	"BAYWATCH_TAG_HEX_LENGTH", "BAYWATCH_DETECTOR_SOURCE", "BAYWATCH_DETECTOR_COMMAND",
	"BAYWATCH_DETECTOR_ARGS", "BAYWATCH_DETECTOR_SUBJECT", "BAYWATCH_DETECTOR_REPLAY_FILE",
	"BAYWATCH_DETECTOR_REPLAY_SPEED", "BAYWATCH_DETECTOR_CAMERA", "BAYWATCH_DETECTOR_WEIGHTS",
	"BAYWATCH_DETECTOR_MODEL_CONFIG", "BAYWATCH_DETECTOR_NAMES", "BAYWATCH_DETECTOR_INPUT_SIZE",
	"BAYWATCH_DATABASE_URL", "BAYWATCH_HTTP_ADDR", "BAYWATCH_GRPC_ADDR", "BAYWATCH_NATS_URL",
	"BAYWATCH_MQTT_BROKER", "BAYWATCH_MQTT_TOPIC_PREFIX", "BAYWATCH_MQTT_CLIENT_ID",
	"BAYWATCH_AUTH_TOKEN", "BAYWATCH_SYNC_INTERVAL", "BAYWATCH_SYNC_S3_BUCKET",
	"BAYWATCH_SYNC_S3_ENDPOINT", "BAYWATCH_SYNC_S3_REGION", "BAYWATCH_SYNC_S3_KEY",
	"BAYWATCH_SYNC_GIT_REPO", "BAYWATCH_SYNC_GIT_FILE", "BAYWATCH_SYNC_GIT_BRANCH",
	"BAYWATCH_LOG_LEVEL", "BAYWATCH_LOG_FORMAT", "BAYWATCH_LOG_FILE",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baywatch.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.TargetLabel != "truck" {
		t.Errorf("TargetLabel = %q, want truck", c.TargetLabel)
	}
	if c.ConfidenceThreshold != 0.5 {
		t.Errorf("ConfidenceThreshold = %v, want 0.5", c.ConfidenceThreshold)
	}
	if c.BufferWindow.Duration != 5*time.Second {
		t.Errorf("BufferWindow = %s, want 5s", c.BufferWindow)
	}
	if c.ReaderMarker != "1100EE00" || c.TagHexLength != 24 {
		t.Errorf("reader framing = %q/%d, want 1100EE00/24", c.ReaderMarker, c.TagHexLength)
	}
	if c.GRPCAddr != ":9090" || c.HTTPAddr != ":8080" {
		t.Errorf("addrs = %q/%q", c.GRPCAddr, c.HTTPAddr)
	}
	if c.Sync.Interval.Duration != 0 {
		t.Errorf("sync should be disabled by default, got %s", c.Sync.Interval)
	}
}

func TestReadFile(t *testing.T) {
	clearAllEnv(t)
	path := writeFile(t, `
target_label = "forklift"
confidence_threshold = 0.7
buffer_window = "2s"
reader_addr = "127.0.0.1:4000"
database_url = "postgres://db/baywatch"

[detector]
source = "exec"
command = "python3"
args = ["detect.py", "--camera", "0"]

[sync]
interval = "10m"
s3_bucket = "bay-archive"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.TargetLabel != "forklift" || c.ConfidenceThreshold != 0.7 {
		t.Errorf("label/threshold = %q/%v", c.TargetLabel, c.ConfidenceThreshold)
	}
	if c.BufferWindow.Duration != 2*time.Second {
		t.Errorf("BufferWindow = %s, want 2s", c.BufferWindow)
	}
	if got := strings.Join(c.Detector.Args, " "); got != "detect.py --camera 0" {
		t.Errorf("Args = %q", got)
	}
	if c.Sync.Interval.Duration != 10*time.Minute || c.Sync.S3Bucket != "bay-archive" {
		t.Errorf("sync = %+v", c.Sync)
	}
	// Untouched keys keep their defaults.
	if c.Sync.S3Region != "us-east-1" || c.TagHexLength != 24 {
		t.Errorf("defaults lost: region=%q taglen=%d", c.Sync.S3Region, c.TagHexLength)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearAllEnv(t)
	path := writeFile(t, `
target_label = "forklift"
[detector]
source = "exec"
command = "detector"
`)
	t.Setenv("BAYWATCH_TARGET_LABEL", "truck")
	t.Setenv("BAYWATCH_BUFFER_WINDOW", "750ms")
	t.Setenv("BAYWATCH_CONFIDENCE_THRESHOLD", "0.25")
	t.Setenv("BAYWATCH_TAG_HEX_LENGTH", "16")
	t.Setenv("BAYWATCH_DETECTOR_ARGS", "--device  /dev/video0")
	t.Setenv("BAYWATCH_NATS_URL", "nats://localhost:4222")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.TargetLabel != "truck" {
		t.Errorf("TargetLabel = %q, want truck", c.TargetLabel)
	}
	if c.BufferWindow.Duration != 750*time.Millisecond {
		t.Errorf("BufferWindow = %s", c.BufferWindow)
	}
	if c.ConfidenceThreshold != 0.25 || c.TagHexLength != 16 {
		t.Errorf("threshold/taglen = %v/%d", c.ConfidenceThreshold, c.TagHexLength)
	}
	if len(c.Detector.Args) != 2 || c.Detector.Args[1] != "/dev/video0" {
		t.Errorf("Args = %q", c.Detector.Args)
	}
	if c.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", c.NATSURL)
	}
}

func TestReadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "BadTOML", file: "target_label = "},
		{name: "BadDurationInFile", file: `buffer_window = "soon"`},
		{name: "BadDurationEnv", env: map[string]string{"BAYWATCH_BUFFER_WINDOW": "5 seconds"}},
		{name: "BadFloatEnv", env: map[string]string{"BAYWATCH_CONFIDENCE_THRESHOLD": "high"}},
		{name: "BadIntEnv", env: map[string]string{"BAYWATCH_TAG_HEX_LENGTH": "x"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			if _, err := Read(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	clearAllEnv(t)
	if _, err := Read(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Detector.Command = "detector"
		return c
	}
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "ThresholdZero", mutate: func(c *Config) { c.ConfidenceThreshold = 0 }},
		{name: "ThresholdOne", mutate: func(c *Config) { c.ConfidenceThreshold = 1 }},
		{name: "ThresholdAbove", mutate: func(c *Config) { c.ConfidenceThreshold = 1.5 }, wantErr: "confidence_threshold"},
		{name: "ThresholdBelow", mutate: func(c *Config) { c.ConfidenceThreshold = -0.1 }, wantErr: "confidence_threshold"},
		{name: "EmptyLabel", mutate: func(c *Config) { c.TargetLabel = "" }, wantErr: "target_label"},
		{name: "ZeroWindow", mutate: func(c *Config) { c.BufferWindow = Duration{} }, wantErr: "buffer_window"},
		{name: "NegativeSweep", mutate: func(c *Config) { c.DedupSweepInterval = Duration{-time.Second} }, wantErr: "dedup_sweep_interval"},
		{name: "BadMarker", mutate: func(c *Config) { c.ReaderMarker = "ZZ" }, wantErr: "reader_marker"},
		{name: "EmptyMarker", mutate: func(c *Config) { c.ReaderMarker = "" }, wantErr: "reader_marker"},
		{name: "ZeroTagLength", mutate: func(c *Config) { c.TagHexLength = 0 }, wantErr: "tag_hex_length"},
		{name: "ExecNoCommand", mutate: func(c *Config) { c.Detector.Command = "" }, wantErr: "detector.command"},
		{name: "NATSNoURL", mutate: func(c *Config) {
			c.Detector.Source = "nats"
			c.Detector.Subject = "frames"
		}, wantErr: "nats_url"},
		{name: "NATSOK", mutate: func(c *Config) {
			c.Detector.Source = "nats"
			c.Detector.Subject = "frames"
			c.NATSURL = "nats://localhost:4222"
		}},
		{name: "ReplayNoFile", mutate: func(c *Config) { c.Detector.Source = "replay" }, wantErr: "replay_file"},
		{name: "ReplayNegativeSpeed", mutate: func(c *Config) {
			c.Detector.Source = "replay"
			c.Detector.ReplayFile = "frames.jsonl"
			c.Detector.ReplaySpeed = -1
		}, wantErr: "replay_speed"},
		{name: "GocvMissingWeights", mutate: func(c *Config) {
			c.Detector.Source = "gocv"
			c.Detector.Camera = "0"
		}, wantErr: "gocv"},
		{name: "UnknownSource", mutate: func(c *Config) { c.Detector.Source = "webcam" }, wantErr: "detector.source"},
		{name: "BadLogLevel", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "log_level"},
		{name: "UpperLogLevel", mutate: func(c *Config) { c.LogLevel = "DEBUG" }},
		{name: "BadLogFormat", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "NegativeSyncInterval", mutate: func(c *Config) { c.Sync.Interval = Duration{-time.Minute} }, wantErr: "sync.interval"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestWriteRedactsToken(t *testing.T) {
	c := Default()
	c.AuthToken = "s3cret"
	c.BufferWindow = Duration{3 * time.Second}

	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "s3cret") {
		t.Fatalf("token leaked in output:\n%s", out)
	}
	if c.AuthToken != "s3cret" {
		t.Error("Write must not modify the receiver")
	}

	var back Config
	if _, err := toml.Decode(out, &back); err != nil {
		t.Fatalf("decode written config: %v\n%s", err, out)
	}
	if back.BufferWindow.Duration != 3*time.Second {
		t.Errorf("BufferWindow round trip = %s", back.BufferWindow)
	}
	if back.AuthToken != "REDACTED" {
		t.Errorf("AuthToken = %q, want REDACTED", back.AuthToken)
	}
}
