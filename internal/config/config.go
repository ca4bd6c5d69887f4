package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/hubload/internal/ble"
	"github.com/chaz8081/hubload/internal/ble/protocol"
	"github.com/chaz8081/hubload/internal/hub"
	"github.com/chaz8081/hubload/internal/upload"
	"github.com/chaz8081/hubload/internal/validate"
)

// Config holds all application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Timing     TimingConfig     `yaml:"timing"`
	Validation ValidationConfig `yaml:"validation"`
	Upload     UploadConfig     `yaml:"upload"`
	LogLevel   string           `yaml:"log_level"`
}

// DeviceConfig selects which hub to connect to.
type DeviceConfig struct {
	NamePrefix   string   `yaml:"name_prefix"`
	Address      string   `yaml:"address"`
	ServiceUUIDs []string `yaml:"service_uuids"`
	ScanTimeout  Duration `yaml:"scan_timeout"`
}

// TimingConfig holds the protocol delays and link timeouts.
type TimingConfig struct {
	SettleAfterInterrupt Duration `yaml:"settle_after_interrupt"`
	SettleAfterRawMode   Duration `yaml:"settle_after_raw_mode"`
	InterChunk           Duration `yaml:"inter_chunk"`
	ChunkSize            int      `yaml:"chunk_size"`
	ConnectTimeout       Duration `yaml:"connect_timeout"`
	WriteTimeout         Duration `yaml:"write_timeout"` // 0 disables
}

// ValidationConfig holds script policy settings.
type ValidationConfig struct {
	AllowTabs bool `yaml:"allow_tabs"`
}

// UploadConfig holds upload defaults.
type UploadConfig struct {
	Filename string `yaml:"filename"`
	Script   string `yaml:"script"` // used when no file argument is given

	// OutputGrace is how long upload keeps printing console output after
	// the execute byte when --follow is not set. 0 disconnects at once.
	OutputGrace Duration `yaml:"output_grace"`
}

// DefaultOutputGrace covers the first lines a script prints, including an
// early traceback.
const DefaultOutputGrace = 2 * time.Second

// Duration is a time.Duration written as a Go duration string ("18ms").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"100ms\"", n.Line)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hubload")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	t := upload.DefaultTiming()
	return &Config{
		Device: DeviceConfig{
			ServiceUUIDs: []string{ble.PybricksServiceUUID, ble.NUSServiceUUID},
			ScanTimeout:  Duration(ble.DefaultScanTimeout),
		},
		Timing: TimingConfig{
			SettleAfterInterrupt: Duration(t.SettleAfterInterrupt),
			SettleAfterRawMode:   Duration(t.SettleAfterRawMode),
			InterChunk:           Duration(t.InterChunk),
			ChunkSize:            t.ChunkSize,
			ConnectTimeout:       Duration(ble.DefaultConnectTimeout),
			WriteTimeout:         Duration(ble.DefaultSessionOptions().WriteTimeout),
		},
		Upload: UploadConfig{
			Filename:    upload.DefaultFilename,
			OutputGrace: Duration(DefaultOutputGrace),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in upload.script is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Upload.Script = expandTilde(cfg.Upload.Script)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if len(c.Device.ServiceUUIDs) == 0 {
		return fmt.Errorf("device.service_uuids must not be empty")
	}
	for _, s := range c.Device.ServiceUUIDs {
		if _, err := uuid.Parse(s); err != nil {
			return fmt.Errorf("device.service_uuids: %q is not a UUID: %w", s, err)
		}
	}

	if c.Timing.ChunkSize < 1 || c.Timing.ChunkSize > protocol.MaxChunkBytes {
		return fmt.Errorf("timing.chunk_size must be between 1 and %d, got %d", protocol.MaxChunkBytes, c.Timing.ChunkSize)
	}

	for name, d := range map[string]Duration{
		"device.scan_timeout":           c.Device.ScanTimeout,
		"timing.settle_after_interrupt": c.Timing.SettleAfterInterrupt,
		"timing.settle_after_raw_mode":  c.Timing.SettleAfterRawMode,
		"timing.inter_chunk":            c.Timing.InterChunk,
		"timing.write_timeout":          c.Timing.WriteTimeout,
		"upload.output_grace":           c.Upload.OutputGrace,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d.D())
		}
	}
	if c.Timing.ConnectTimeout <= 0 {
		return fmt.Errorf("timing.connect_timeout must be > 0")
	}

	if err := validate.ValidateFilename(c.Upload.Filename); err != nil {
		return fmt.Errorf("upload.filename: %w", err)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel returns the slog level named by log_level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
}

// Filter returns the device filter.
func (c *Config) Filter() ble.Filter {
	return ble.Filter{
		ServiceUUIDs: c.Device.ServiceUUIDs,
		NamePrefix:   c.Device.NamePrefix,
		Address:      c.Device.Address,
		ScanTimeout:  c.Device.ScanTimeout.D(),
	}
}

// HubOptions maps the config onto hub options.
func (c *Config) HubOptions() hub.Options {
	opts := hub.DefaultOptions()
	opts.Filter = c.Filter()
	opts.ConnectTimeout = c.Timing.ConnectTimeout.D()
	opts.Session.WriteTimeout = c.Timing.WriteTimeout.D()
	opts.Upload.Timing = upload.Timing{
		SettleAfterInterrupt: c.Timing.SettleAfterInterrupt.D(),
		SettleAfterRawMode:   c.Timing.SettleAfterRawMode.D(),
		InterChunk:           c.Timing.InterChunk.D(),
		ChunkSize:            c.Timing.ChunkSize,
	}
	opts.Upload.Policy = validate.Policy{AllowTabs: c.Validation.AllowTabs}
	return opts
}

const header = `# hubload configuration
#
# Durations are Go duration strings ("100ms", "15s").
# Delays under timing are firmware assumptions; raise inter_chunk if
# uploads arrive truncated.

`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
