// Package config loads nbridge configuration: YAML file, then NBRIDGE_*
// environment overrides, then schema validation.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete nbridge configuration.
type Config struct {
	Platform  string         `yaml:"platform" json:"platform" env:"NBRIDGE_PLATFORM"`
	ClassName string         `yaml:"class_name" json:"class_name" env:"NBRIDGE_CLASS_NAME"`
	Receiver  ReceiverConfig `yaml:"receiver" json:"receiver"`
	Android   AndroidConfig  `yaml:"android" json:"android"`
	Sync      SyncConfig     `yaml:"sync" json:"sync"`
	Remote    RemoteConfig   `yaml:"remote" json:"remote"`
	Journal   JournalConfig  `yaml:"journal" json:"journal"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// ReceiverConfig names the callback endpoint registered with native code.
type ReceiverConfig struct {
	Object string `yaml:"object" json:"object" env:"NBRIDGE_RECEIVER_OBJECT"`
	Method string `yaml:"method" json:"method" env:"NBRIDGE_RECEIVER_METHOD"`
}

type AndroidConfig struct {
	PluginClass string `yaml:"plugin_class" json:"plugin_class" env:"NBRIDGE_ANDROID_PLUGIN_CLASS"`
}

type SyncConfig struct {
	TimeoutMS  int    `yaml:"timeout_ms" json:"timeout_ms" env:"NBRIDGE_SYNC_TIMEOUT_MS"`
	BusyPolicy string `yaml:"busy_policy" json:"busy_policy" env:"NBRIDGE_SYNC_BUSY_POLICY"`
}

type RemoteConfig struct {
	URL                string `yaml:"url" json:"url" env:"NBRIDGE_REMOTE_URL"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms" json:"handshake_timeout_ms" env:"NBRIDGE_REMOTE_HANDSHAKE_TIMEOUT_MS"`
	VersionConstraint  string `yaml:"version_constraint" json:"version_constraint" env:"NBRIDGE_REMOTE_VERSION_CONSTRAINT"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"NBRIDGE_JOURNAL_ENABLED"`
	Path    string `yaml:"path" json:"path" env:"NBRIDGE_JOURNAL_PATH"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"NBRIDGE_LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"NBRIDGE_LOG_FORMAT"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Platform: "auto",
		Receiver: ReceiverConfig{
			Object: "CORE_TYPE",
			Method: "OnAsyncEvent",
		},
		Android: AndroidConfig{
			PluginClass: "com.gpm.communicator.internal.MessageReceiver",
		},
		Sync: SyncConfig{
			TimeoutMS:  5000,
			BusyPolicy: "queue",
		},
		Remote: RemoteConfig{
			HandshakeTimeoutMS: 5000,
			VersionConstraint:  ">= 1.1.0, < 2.0.0",
		},
		Journal: JournalConfig{
			Path: "nbridge.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty and present) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults plus environment.
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := decodeYAML(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML rejects unknown keys so typos do not silently fall back to
// defaults.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ValidationError lists every schema violation found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Issues, "; ")
}

// Validate checks cfg against the embedded schema and the semantic rules
// the schema cannot express.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	var issues []string
	unified := def.Unify(ctx.Encode(cfg))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			issues = append(issues, formatIssue(e))
		}
	}

	if cfg.Remote.VersionConstraint != "" {
		if _, err := semver.NewConstraint(cfg.Remote.VersionConstraint); err != nil {
			issues = append(issues, fmt.Sprintf("remote.version_constraint: %v", err))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func formatIssue(e cueerrors.Error) string {
	path := strings.Join(e.Path(), ".")
	path = strings.TrimPrefix(path, "#Config.")
	format, args := e.Msg()
	msg := fmt.Sprintf(format, args...)
	if path == "" {
		return msg
	}
	return path + ": " + msg
}

// SyncTimeout returns the sync call bound.
func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutMS) * time.Millisecond
}

// HandshakeTimeout returns the remote dial and hello bound.
func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Remote.HandshakeTimeoutMS) * time.Millisecond
}

// LogLevel maps the configured level to slog.
func (c Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
