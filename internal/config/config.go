// Package config loads daemon settings: built-in defaults, then an optional
// TOML file, then BAYWATCH_* environment overrides. Settings are read once at
// startup.
package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that reads and writes as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DetectorConfig selects and configures the frame source.
type DetectorConfig struct {
	Source      string   `toml:"source"` // exec | nats | replay | gocv
	Command     string   `toml:"command"`
	Args        []string `toml:"args"`
	Subject     string   `toml:"subject"`
	ReplayFile  string   `toml:"replay_file"`
	ReplaySpeed float64  `toml:"replay_speed"`
	Camera      string   `toml:"camera"` // device index or stream URL
	Weights     string   `toml:"weights"`
	ModelConfig string   `toml:"model_config"`
	Names       string   `toml:"names"`
	InputSize   int      `toml:"input_size"`
}

// SyncConfig configures the periodic session export.
type SyncConfig struct {
	Interval   Duration `toml:"interval"` // 0 = disabled
	S3Bucket   string   `toml:"s3_bucket"`
	S3Endpoint string   `toml:"s3_endpoint"`
	S3Region   string   `toml:"s3_region"`
	S3Key      string   `toml:"s3_key"` // may contain {date}
	GitRepo    string   `toml:"git_repo"`
	GitFile    string   `toml:"git_file"`
	GitBranch  string   `toml:"git_branch"`
}

type Config struct {
	// Correlation
	TargetLabel         string   `toml:"target_label"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	BufferWindow        Duration `toml:"buffer_window"`
	DedupSweepInterval  Duration `toml:"dedup_sweep_interval"` // 0 = never evict

	// Tag reader transport
	ReaderAddr   string `toml:"reader_addr"`
	ReaderMarker string `toml:"reader_marker"`
	TagHexLength int    `toml:"tag_hex_length"`

	Detector DetectorConfig `toml:"detector"`

	// Persistence, APIs and event sinks
	DatabaseURL     string `toml:"database_url"` // empty = in-memory store
	HTTPAddr        string `toml:"http_addr"`
	GRPCAddr        string `toml:"grpc_addr"`
	NATSURL         string `toml:"nats_url"`
	MQTTBroker      string `toml:"mqtt_broker"`
	MQTTTopicPrefix string `toml:"mqtt_topic_prefix"`
	MQTTClientID    string `toml:"mqtt_client_id"`
	AuthToken       string `toml:"auth_token"`

	Sync SyncConfig `toml:"sync"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		TargetLabel:         "truck",
		ConfidenceThreshold: 0.5,
		BufferWindow:        Duration{5 * time.Second},
		ReaderAddr:          ":2323",
		ReaderMarker:        "1100EE00",
		TagHexLength:        24,
		Detector: DetectorConfig{
			Source:    "exec",
			InputSize: 416,
		},
		HTTPAddr:        ":8080",
		GRPCAddr:        ":9090",
		MQTTTopicPrefix: "baywatch",
		MQTTClientID:    "baywatch",
		Sync: SyncConfig{
			S3Region:  "us-east-1",
			S3Key:     "baywatch/sessions.jsonl",
			GitFile:   "sessions.jsonl",
			GitBranch: "main",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads and validates the configuration. path may be empty.
func Load(path string) (*Config, error) {
	c, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read applies the file and environment layers without validating.
func Read(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"BAYWATCH_TARGET_LABEL":          &c.TargetLabel,
		"BAYWATCH_READER_ADDR":           &c.ReaderAddr,
		"BAYWATCH_READER_MARKER":         &c.ReaderMarker,
		"BAYWATCH_DETECTOR_SOURCE":       &c.Detector.Source,
		"BAYWATCH_DETECTOR_COMMAND":      &c.Detector.Command,
		"BAYWATCH_DETECTOR_SUBJECT":      &c.Detector.Subject,
		"BAYWATCH_DETECTOR_REPLAY_FILE":  &c.Detector.ReplayFile,
		"BAYWATCH_DETECTOR_CAMERA":       &c.Detector.Camera,
		"BAYWATCH_DETECTOR_WEIGHTS":      &c.Detector.Weights,
		"BAYWATCH_DETECTOR_MODEL_CONFIG": &c.Detector.ModelConfig,
		"BAYWATCH_DETECTOR_NAMES":        &c.Detector.Names,
		"BAYWATCH_DATABASE_URL":          &c.DatabaseURL,
		"BAYWATCH_HTTP_ADDR":             &c.HTTPAddr,
		"BAYWATCH_GRPC_ADDR":             &c.GRPCAddr,
		"BAYWATCH_NATS_URL":              &c.NATSURL,
		"BAYWATCH_MQTT_BROKER":           &c.MQTTBroker,
		"BAYWATCH_MQTT_TOPIC_PREFIX":     &c.MQTTTopicPrefix,
		"BAYWATCH_MQTT_CLIENT_ID":        &c.MQTTClientID,
		"BAYWATCH_AUTH_TOKEN":            &c.AuthToken,
		"BAYWATCH_SYNC_S3_BUCKET":        &c.Sync.S3Bucket,
		"BAYWATCH_SYNC_S3_ENDPOINT":      &c.Sync.S3Endpoint,
		"BAYWATCH_SYNC_S3_REGION":        &c.Sync.S3Region,
		"BAYWATCH_SYNC_S3_KEY":           &c.Sync.S3Key,
		"BAYWATCH_SYNC_GIT_REPO":         &c.Sync.GitRepo,
		"BAYWATCH_SYNC_GIT_FILE":         &c.Sync.GitFile,
		"BAYWATCH_SYNC_GIT_BRANCH":       &c.Sync.GitBranch,
		"BAYWATCH_LOG_LEVEL":             &c.LogLevel,
		"BAYWATCH_LOG_FORMAT":            &c.LogFormat,
		"BAYWATCH_LOG_FILE":              &c.LogFile,
	}
	for key, dst := range strVars {
		*dst = envOrDefault(key, *dst)
	}

	if v := os.Getenv("BAYWATCH_DETECTOR_ARGS"); v != "" {
		c.Detector.Args = strings.Fields(v)
	}

	durVars := map[string]*Duration{
		"BAYWATCH_BUFFER_WINDOW":        &c.BufferWindow,
		"BAYWATCH_DEDUP_SWEEP_INTERVAL": &c.DedupSweepInterval,
		"BAYWATCH_SYNC_INTERVAL":        &c.Sync.Interval,
	}
	for key, dst := range durVars {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			dst.Duration = d
		}
	}

	floatVars := map[string]*float64{
		"BAYWATCH_CONFIDENCE_THRESHOLD":  &c.ConfidenceThreshold,
		"BAYWATCH_DETECTOR_REPLAY_SPEED": &c.Detector.ReplaySpeed,
	}
	for key, dst := range floatVars {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	intVars := map[string]*int{
		"BAYWATCH_TAG_HEX_LENGTH":      &c.TagHexLength,
		"BAYWATCH_DETECTOR_INPUT_SIZE": &c.Detector.InputSize,
	}
	for key, dst := range intVars {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate checks value ranges and that the selected detector source has
// what it needs.
func (c *Config) Validate() error {
	if c.TargetLabel == "" {
		return fmt.Errorf("target_label is required")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold %v must be within [0,1]", c.ConfidenceThreshold)
	}
	if c.BufferWindow.Duration <= 0 {
		return fmt.Errorf("buffer_window must be positive, got %s", c.BufferWindow)
	}
	if c.DedupSweepInterval.Duration < 0 {
		return fmt.Errorf("dedup_sweep_interval must not be negative")
	}
	if c.ReaderAddr == "" {
		return fmt.Errorf("reader_addr is required")
	}
	if _, err := hex.DecodeString(c.ReaderMarker); err != nil || c.ReaderMarker == "" {
		return fmt.Errorf("reader_marker %q must be non-empty hex", c.ReaderMarker)
	}
	if c.TagHexLength <= 0 {
		return fmt.Errorf("tag_hex_length must be positive, got %d", c.TagHexLength)
	}
	if c.Sync.Interval.Duration < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}

	d := c.Detector
	switch d.Source {
	case "exec":
		if d.Command == "" {
			return fmt.Errorf("detector.command is required for the exec source")
		}
	case "nats":
		if d.Subject == "" || c.NATSURL == "" {
			return fmt.Errorf("detector.subject and nats_url are required for the nats source")
		}
	case "replay":
		if d.ReplayFile == "" {
			return fmt.Errorf("detector.replay_file is required for the replay source")
		}
		if d.ReplaySpeed < 0 {
			return fmt.Errorf("detector.replay_speed must not be negative")
		}
	case "gocv":
		if d.Camera == "" || d.Weights == "" || d.ModelConfig == "" || d.Names == "" {
			return fmt.Errorf("detector.camera, weights, model_config and names are required for the gocv source")
		}
	default:
		return fmt.Errorf("unknown detector.source %q (want exec, nats, replay or gocv)", d.Source)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Write encodes c as TOML. The auth token is redacted.
func (c *Config) Write(w io.Writer) error {
	out := *c
	if out.AuthToken != "" {
		out.AuthToken = "REDACTED"
	}
	return toml.NewEncoder(w).Encode(out)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
