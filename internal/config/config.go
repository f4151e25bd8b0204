package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFormat  string           `json:"log_format" yaml:"log_format"`
	Fleet      FleetConfig      `json:"fleet" yaml:"fleet"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Alerts     AlertsConfig     `json:"alerts" yaml:"alerts"`
	API        APIConfig        `json:"api" yaml:"api"`
	Roster     RosterConfig     `json:"roster" yaml:"roster"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
}

type FleetConfig struct {
	Size      int      `json:"size" yaml:"size"`
	Regions   []string `json:"regions" yaml:"regions"`
	CenterLat float64  `json:"center_lat" yaml:"center_lat"`
	CenterLng float64  `json:"center_lng" yaml:"center_lng"`
	Spread    float64  `json:"spread" yaml:"spread"`
}

type SimulationConfig struct {
	Seed                   uint64        `json:"seed" yaml:"seed"`
	TickInterval           time.Duration `json:"tick_interval" yaml:"tick_interval"`
	TickAlertProbability   float64       `json:"tick_alert_probability" yaml:"tick_alert_probability"`
	DeviceAlertProbability float64       `json:"device_alert_probability" yaml:"device_alert_probability"`
	AlertLookback          time.Duration `json:"alert_lookback" yaml:"alert_lookback"`
}

type AlertsConfig struct {
	FeedLimit int `json:"feed_limit" yaml:"feed_limit"`
}

type APIConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type RosterConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
	NATS  NATSConfig  `json:"nats" yaml:"nats"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type NATSConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	URL           string `json:"url" yaml:"url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

func DefaultRegions() []string {
	return []string{"North Border", "East Sector", "West Zone", "South Perimeter"}
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Fleet: FleetConfig{
			Size:      24,
			Regions:   DefaultRegions(),
			CenterLat: 28.6,
			CenterLng: 77.2,
			Spread:    2,
		},
		Simulation: SimulationConfig{
			TickInterval:           5 * time.Second,
			TickAlertProbability:   0.2,
			DeviceAlertProbability: 0.3,
			AlertLookback:          10 * time.Minute,
		},
		Alerts: AlertsConfig{FeedLimit: 20},
		API:    APIConfig{Enabled: true, Addr: ":8080"},
		Roster: RosterConfig{Enabled: false, Driver: "sqlite", DSN: "file:patrolwatch.db?_pragma=busy_timeout(5000)"},
		Publish: PublishConfig{
			Kafka: KafkaConfig{Enabled: false, Topic: "patrolwatch.events"},
			NATS:  NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222", SubjectPrefix: "patrolwatch"},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	if cfg.Fleet.Size <= 0 {
		cfg.Fleet.Size = def.Fleet.Size
	}
	if len(cfg.Fleet.Regions) == 0 {
		cfg.Fleet.Regions = def.Fleet.Regions
	}
	if cfg.Fleet.Spread <= 0 {
		cfg.Fleet.Spread = def.Fleet.Spread
	}
	if cfg.Simulation.TickInterval <= 0 {
		cfg.Simulation.TickInterval = def.Simulation.TickInterval
	}
	if cfg.Simulation.AlertLookback <= 0 {
		cfg.Simulation.AlertLookback = def.Simulation.AlertLookback
	}
	if cfg.Alerts.FeedLimit <= 0 {
		cfg.Alerts.FeedLimit = def.Alerts.FeedLimit
	}
	if cfg.Publish.NATS.SubjectPrefix == "" {
		cfg.Publish.NATS.SubjectPrefix = def.Publish.NATS.SubjectPrefix
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Fleet.Size > 999 {
		return fmt.Errorf("fleet.size must be <= 999, got %d", cfg.Fleet.Size)
	}
	if p := cfg.Simulation.TickAlertProbability; p < 0 || p > 1 {
		return fmt.Errorf("simulation.tick_alert_probability must be within [0,1], got %v", p)
	}
	if p := cfg.Simulation.DeviceAlertProbability; p < 0 || p > 1 {
		return fmt.Errorf("simulation.device_alert_probability must be within [0,1], got %v", p)
	}
	if cfg.Roster.Enabled {
		switch strings.ToLower(cfg.Roster.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("roster.driver %q is not supported", cfg.Roster.Driver)
		}
	}
	if cfg.Publish.Kafka.Enabled {
		if len(cfg.Publish.Kafka.Brokers) == 0 || cfg.Publish.Kafka.Topic == "" {
			return errors.New("publish.kafka requires brokers and topic")
		}
	}
	if cfg.Publish.NATS.Enabled && cfg.Publish.NATS.URL == "" {
		return errors.New("publish.nats.url required when publish.nats.enabled is true")
	}
	for _, region := range cfg.Fleet.Regions {
		if strings.TrimSpace(region) == "" {
			return errors.New("fleet.regions contains an empty region")
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

// NewManager loads path, or serves defaults when path is empty.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		m := &Manager{}
		m.cfg.Store(DefaultConfig())
		return m, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
