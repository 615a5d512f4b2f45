// Package config handles configuration loading, validation, and persistence
// for rconbridge.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/rconbridge/internal/rcon"
	"github.com/energizer-project/rconbridge/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
	DefaultRCONPort   = 27015
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	RCONData        RCONData        `json:"rcon_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// RCONData lists the game servers rconbridge talks to.
type RCONData struct {
	Servers []ServerTarget `json:"servers"`

	// MaxBodySize caps reply bodies for every target; zero uses the
	// client default.
	MaxBodySize int `json:"max_body_size"`
}

// ServerTarget is one named RCON endpoint.
type ServerTarget struct {
	Name              string `json:"name"`
	Address           string `json:"address"`
	Password          string `json:"password"`
	ReadTimeoutSec    int    `json:"read_timeout_sec"`
	WriteTimeoutSec   int    `json:"write_timeout_sec"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec"`
	Enabled           bool   `json:"enabled"`
}

// RCONConfig converts the target to a client configuration. Zero timeouts
// stay zero so the client applies its own default.
func (t ServerTarget) RCONConfig() rcon.Config {
	return rcon.Config{
		Address:        t.Address,
		ReadTimeout:    time.Duration(t.ReadTimeoutSec) * time.Second,
		WriteTimeout:   time.Duration(t.WriteTimeoutSec) * time.Second,
		ConnectTimeout: time.Duration(t.ConnectTimeoutSec) * time.Second,
	}
}

// ApplicationData contains gateway configuration.
type ApplicationData struct {
	API       APIConfig        `json:"api"`
	Security  SecurityConfig   `json:"security"`
	MQTT      MQTTConfig       `json:"mqtt"`
	Logging   LoggingConfig    `json:"logging"`
	History   HistoryConfig    `json:"history"`
	Timers    TimerConfig      `json:"timers"`
	Schedules []ScheduleConfig `json:"schedules"`
	Notify    NotifyConfig     `json:"notify"`
}

// APIConfig holds the REST listener settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// LogConfig converts to the logger setup structure.
func (l LoggingConfig) LogConfig() util.LogConfig {
	return util.LogConfig{
		Level:      l.Level,
		Directory:  l.Directory,
		MaxBackups: l.MaxBackups,
		Console:    true,
	}
}

// HistoryConfig controls the command history database.
type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DatabaseFile  string `json:"database_file"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// TimerConfig holds health check and background task intervals.
type TimerConfig struct {
	HealthCheckIntervalSec int    `json:"health_check_interval_sec"`
	ProbeCommand           string `json:"probe_command"`
	SessionIdleTimeoutSec  int    `json:"session_idle_timeout_sec"`
	HeartbeatIntervalSec   int    `json:"heartbeat_interval_sec"`
}

// NotifyConfig controls admin alerts posted to a Discord-compatible
// webhook. An empty WebhookURL disables them.
type NotifyConfig struct {
	WebhookURL    string `json:"webhook_url"`
	OnAuthFailure bool   `json:"on_auth_failure"`
	OnHealth      bool   `json:"on_health"`
}

// ScheduleConfig runs Command on Server every IntervalSec seconds.
type ScheduleConfig struct {
	Server      string `json:"server"`
	Command     string `json:"command"`
	IntervalSec int    `json:"interval_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RCONData: RCONData{
			Servers:     []ServerTarget{},
			MaxBodySize: rcon.DefaultMaxBodySize,
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Host: "127.0.0.1",
				Port: DefaultAPIPort,
			},
			Security: SecurityConfig{
				TLSCertFile:  filepath.Join(DefaultConfigDir, "tls", "cert.pem"),
				TLSKeyFile:   filepath.Join(DefaultConfigDir, "tls", "key.pem"),
				RateLimitRPS: 20,
			},
			MQTT: MQTTConfig{
				Port:     1883,
				ClientID: "rconbridge",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
			History: HistoryConfig{
				Enabled:       true,
				DatabaseFile:  filepath.Join(DefaultConfigDir, "rconbridge.db"),
				RetentionDays: 30,
				CleanupTime:   "04:00",
			},
			Timers: TimerConfig{
				HealthCheckIntervalSec: 60,
				SessionIdleTimeoutSec:  600,
				HeartbeatIntervalSec:   60,
			},
			Schedules: []ScheduleConfig{},
			Notify: NotifyConfig{
				OnAuthFailure: true,
				OnHealth:      true,
			},
		},
	}
}

// Load reads configuration from configDir/config.json, writing the defaults
// there first when the file does not exist.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Debug().Str("path", configPath).Int("servers", len(cfg.RCONData.Servers)).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds rcon passwords.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRCONData returns a copy of the server list configuration.
func (c *Config) GetRCONData() RCONData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := c.RCONData
	data.Servers = append([]ServerTarget(nil), c.RCONData.Servers...)
	return data
}

// SetRCONData replaces the server list configuration.
func (c *Config) SetRCONData(data RCONData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RCONData = data
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := c.ApplicationData
	data.Schedules = append([]ScheduleConfig(nil), c.ApplicationData.Schedules...)
	return data
}

// SetApplicationData updates the application configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// Target looks up a configured server by name.
func (c *Config) Target(name string) (ServerTarget, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.RCONData.Servers {
		if t.Name == name {
			return t, true
		}
	}
	return ServerTarget{}, false
}

// UpsertTarget adds t or replaces the target with the same name.
func (c *Config) UpsertTarget(t ServerTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.RCONData.Servers {
		if c.RCONData.Servers[i].Name == t.Name {
			c.RCONData.Servers[i] = t
			return
		}
	}
	c.RCONData.Servers = append(c.RCONData.Servers, t)
}

// RemoveTarget deletes the named target and reports whether it existed.
func (c *Config) RemoveTarget(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.RCONData.Servers {
		if t.Name == name {
			c.RCONData.Servers = append(c.RCONData.Servers[:i], c.RCONData.Servers[i+1:]...)
			return true
		}
	}
	return false
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if no server has been configured yet.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.RCONData.Servers) == 0
}
