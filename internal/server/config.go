package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/European-XFEL/FunctionGenerator/internal/device"
	"github.com/European-XFEL/FunctionGenerator/internal/logger"
	"github.com/European-XFEL/FunctionGenerator/internal/transport"
)

// Config holds all daemon configuration.
type Config struct {
	mu sync.RWMutex

	Instrument InstrumentConfig `yaml:"instrument" json:"instrument"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Journal    JournalConfig    `yaml:"journal" json:"journal"`
	Logging    logger.Config    `yaml:"logging" json:"logging"`

	path string // file path for save/load
}

type InstrumentConfig struct {
	Model           string           `yaml:"model" json:"model"`
	Transport       transport.Config `yaml:"transport" json:"transport"`
	ConnectTimeoutS float64          `yaml:"connect_timeout_s" json:"connectTimeoutS"`
	ReadTimeoutS    float64          `yaml:"read_timeout_s" json:"readTimeoutS"`
	PollIntervalS   float64          `yaml:"poll_interval_s" json:"pollIntervalS"`
	RetryDelayS     float64          `yaml:"retry_delay_s" json:"retryDelayS"`
	ArbPath         string           `yaml:"arb_path" json:"arbPath"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// envOverrides maps environment variables onto config fields. Empty string
// and nil mean "not set".
type envOverrides struct {
	Model         string   `env:"FGEN_MODEL"`
	TransportType string   `env:"FGEN_TRANSPORT"`
	Addr          string   `env:"FGEN_ADDR"`
	PortPath      string   `env:"FGEN_PORT"`
	BaudRate      *int     `env:"FGEN_BAUD"`
	PollIntervalS *float64 `env:"FGEN_POLL_S"`
	RetryDelayS   *float64 `env:"FGEN_RETRY_S"`
	ListenAddr    string   `env:"LISTEN_ADDR"`
	JournalPath   string   `env:"JOURNAL_PATH"`
	LogEnabled    *bool    `env:"LOG_ENABLED"`
	LogPath       string   `env:"LOG_PATH"`
	LogIntervalMs *int     `env:"LOG_INTERVAL_MS"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Model: "Keysight33512",
			Transport: transport.Config{
				Type:     "tcp",
				Addr:     "localhost:5025",
				PortPath: "/dev/ttyUSB0",
				BaudRate: 115200,
			},
			ConnectTimeoutS: 10,
			ReadTimeoutS:    2,
			PollIntervalS:   5,
			RetryDelayS:     1,
			ArbPath:         `INT:\BUILTIN`,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./fgen-journal.db",
		},
		Logging: logger.Config{
			Enabled:    false,
			Path:       "./log",
			IntervalMs: 1000,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Real env takes precedence over .env files
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func (c *Config) applyEnvOverrides() {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		log.Printf("[config] env parse: %v", err)
		return
	}
	if ov.Model != "" {
		c.Instrument.Model = ov.Model
	}
	if ov.TransportType != "" {
		c.Instrument.Transport.Type = ov.TransportType
	}
	if ov.Addr != "" {
		c.Instrument.Transport.Addr = ov.Addr
	}
	if ov.PortPath != "" {
		c.Instrument.Transport.PortPath = ov.PortPath
	}
	if ov.BaudRate != nil {
		c.Instrument.Transport.BaudRate = *ov.BaudRate
	}
	if ov.PollIntervalS != nil {
		c.Instrument.PollIntervalS = *ov.PollIntervalS
	}
	if ov.RetryDelayS != nil {
		c.Instrument.RetryDelayS = *ov.RetryDelayS
	}
	if ov.ListenAddr != "" {
		c.Server.ListenAddr = ov.ListenAddr
	}
	if ov.JournalPath != "" {
		c.Journal.Enabled = true
		c.Journal.Path = ov.JournalPath
	}
	if ov.LogEnabled != nil {
		c.Logging.Enabled = *ov.LogEnabled
	}
	if ov.LogPath != "" {
		c.Logging.Path = ov.LogPath
	}
	if ov.LogIntervalMs != nil {
		c.Logging.IntervalMs = *ov.LogIntervalMs
	}
}

// DeviceConfig converts the instrument settings to a device.Config.
func (c *Config) DeviceConfig() device.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return device.Config{
		ConnectTimeout: secs(c.Instrument.ConnectTimeoutS),
		ReadTimeout:    secs(c.Instrument.ReadTimeoutS),
		RetryDelay:     secs(c.Instrument.RetryDelayS),
		PollInterval:   secs(c.Instrument.PollIntervalS),
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "./fgen.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
