package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	PSKReporter PSKReporterConfig `yaml:"pskreporter"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Store       StoreConfig       `yaml:"store"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Activity    ActivityConfig    `yaml:"activity"`
	Buffer      BufferConfig      `yaml:"buffer"`
	Admin       AdminConfig       `yaml:"admin"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains general server settings
type ServerConfig struct {
	Name   string `yaml:"name"`
	NodeID string `yaml:"node_id"`
}

// PSKReporterConfig contains PSKReporter MQTT settings
type PSKReporterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Broker  string   `yaml:"broker"`
	Port    int      `yaml:"port"`
	Topics  []string `yaml:"topics"`
	Mode    string   `yaml:"mode"` // topic filter mode when topics is empty, e.g. "FT8" or "+"
	Name    string   `yaml:"name"`
}

// DedupConfig contains transport deduplication settings
type DedupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	WindowSeconds int    `yaml:"window_seconds"`
	JournalPath   string `yaml:"journal_path"`
}

// StoreConfig contains the SQLite spot store settings
type StoreConfig struct {
	DBPath             string `yaml:"db_path"`
	BusyTimeoutMS      int    `yaml:"busy_timeout_ms"`
	RetentionHours     int    `yaml:"retention_hours"`
	PreflightTimeoutMS int    `yaml:"preflight_timeout_ms"`
}

// IngestConfig contains batch persister settings
type IngestConfig struct {
	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMS int `yaml:"flush_interval_ms"`
	MaxPending      int `yaml:"max_pending"`
}

// ActivityConfig contains window aggregation and cache settings
type ActivityConfig struct {
	WindowMinutes   int `yaml:"window_minutes"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// BufferConfig contains the recent-spot ring buffer settings
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// AdminConfig contains admin interface settings
type AdminConfig struct {
	HTTPPort    int    `yaml:"http_port"`
	BindAddress string `yaml:"bind_address"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load loads configuration from a YAML file and fills in defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a runnable configuration without a file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "bandwatch"
	}
	if c.PSKReporter.Broker == "" {
		c.PSKReporter.Broker = "mqtt.pskreporter.info"
	}
	if c.PSKReporter.Port == 0 {
		c.PSKReporter.Port = 1883
	}
	if c.PSKReporter.Mode == "" {
		c.PSKReporter.Mode = "+"
	}
	if c.Dedup.WindowSeconds == 0 {
		c.Dedup.WindowSeconds = 300
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "data/spots.db"
	}
	if c.Store.BusyTimeoutMS == 0 {
		c.Store.BusyTimeoutMS = 5000
	}
	if c.Store.RetentionHours == 0 {
		c.Store.RetentionHours = 72
	}
	if c.Store.PreflightTimeoutMS == 0 {
		c.Store.PreflightTimeoutMS = 2000
	}
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = 200
	}
	if c.Ingest.FlushIntervalMS == 0 {
		c.Ingest.FlushIntervalMS = 5000
	}
	if c.Ingest.MaxPending == 0 {
		c.Ingest.MaxPending = 50000
	}
	if c.Activity.WindowMinutes == 0 {
		c.Activity.WindowMinutes = 60
	}
	if c.Activity.CacheTTLSeconds == 0 {
		c.Activity.CacheTTLSeconds = 30
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = 5000
	}
	if c.Admin.HTTPPort == 0 {
		c.Admin.HTTPPort = 8080
	}
	if c.Admin.BindAddress == "" {
		c.Admin.BindAddress = "127.0.0.1"
	}
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Server: %s (%s)\n", c.Server.Name, c.Server.NodeID)
	if c.PSKReporter.Enabled {
		topics := "auto"
		if len(c.PSKReporter.Topics) > 0 {
			topics = strings.Join(c.PSKReporter.Topics, ", ")
		} else if c.PSKReporter.Mode != "" {
			topics = "mode filter " + c.PSKReporter.Mode
		}
		fmt.Printf("PSKReporter: %s:%d (topics: %s)\n", c.PSKReporter.Broker, c.PSKReporter.Port, topics)
	}
	if c.Dedup.Enabled {
		journal := "memory only"
		if c.Dedup.JournalPath != "" {
			journal = c.Dedup.JournalPath
		}
		fmt.Printf("Dedup: window=%ds, journal=%s\n", c.Dedup.WindowSeconds, journal)
	}
	fmt.Printf("Store: %s (retention %dh)\n", c.Store.DBPath, c.Store.RetentionHours)
	fmt.Printf("Ingest: batch=%d, flush=%dms\n", c.Ingest.BatchSize, c.Ingest.FlushIntervalMS)
	fmt.Printf("Activity: window=%dm, cache ttl=%ds\n", c.Activity.WindowMinutes, c.Activity.CacheTTLSeconds)
	fmt.Printf("Admin: %s:%d\n", c.Admin.BindAddress, c.Admin.HTTPPort)
}
