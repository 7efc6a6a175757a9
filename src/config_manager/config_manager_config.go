package config_manager

import (
	"encoding/json"
	"os"
	"time"
)

// Config represents the main configuration for the netconfig daemon.
type Config struct {
	ConfigVersion            string         `json:"config_version"`
	LogLevel                 string         `json:"log_level"`
	Store                    StoreConfig    `json:"store"`
	Wpa                      WpaConfig      `json:"wpa"`
	Liveness                 LivenessConfig `json:"liveness"`
	DefaultNetworkConfigPath string         `json:"default_network_config_path"`
	SetupCommand             string         `json:"setup_command"`
	SocketPath               string         `json:"socket_path"`
	MetricsListen            string         `json:"metrics_listen"`
}

// StoreConfig selects and configures the network document store.
type StoreConfig struct {
	Backend  string `json:"backend"` // "redis" or "buntdb"
	RedisURL string `json:"redis_url"`
	BuntPath string `json:"bunt_path"`
	Key      string `json:"key"`

	// Persisted documents are flushed to disk this long after the last save
	FlushDelay Duration `json:"flush_delay"`
}

// WpaConfig holds settings for driving wpa_supplicant
type WpaConfig struct {
	CLIPath       string   `json:"cli_path"`
	RuntimeFolder string   `json:"runtime_folder"`
	UseSudo       bool     `json:"use_sudo"`
	PollInterval  Duration `json:"poll_interval"`
	SwitchTimeout Duration `json:"switch_timeout"`
}

// LivenessConfig holds the WAN probe policy
type LivenessConfig struct {
	Resolvers   []string `json:"resolvers"`
	MinSuccess  int      `json:"min_success"`
	DNSTimeout  Duration `json:"dns_timeout"`
	ProbeHost   string   `json:"probe_host"`
	HTTPSites   []string `json:"http_sites"`
	HTTPTimeout Duration `json:"http_timeout"`
}

// Store backends.
const (
	BackendRedis            = "redis"
	BackendBuntDB           = "buntdb"
	DefaultNetworkConfigKey = "sysdb:networkConfig"
)

// LoadConfig loads and parses config.json.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Return nil config if file does not exist
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil // Return nil config if file is empty
	}
	var config Config
	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves config.json.
func SaveConfig(filePath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		LogLevel:      "info",
		Store: StoreConfig{
			Backend:    BackendBuntDB,
			RedisURL:   "redis://127.0.0.1:6379/0",
			BuntPath:   "/etc/netconfig/netconfig.db",
			Key:        DefaultNetworkConfigKey,
			FlushDelay: Duration(3 * time.Second),
		},
		Wpa: WpaConfig{
			CLIPath:       "wpa_cli",
			RuntimeFolder: "/var/run",
			UseSudo:       false,
			PollInterval:  Duration(3 * time.Second),
			SwitchTimeout: Duration(15 * time.Second),
		},
		Liveness: LivenessConfig{
			Resolvers:   []string{"1.1.1.1", "8.8.8.8", "9.9.9.9"},
			MinSuccess:  1,
			DNSTimeout:  Duration(500 * time.Millisecond),
			ProbeHost:   "github.com",
			HTTPSites:   []string{"captive.apple.com", "cp.cloudflare.com", "clients3.google.com/generate_204"},
			HTTPTimeout: Duration(5 * time.Second),
		},
		DefaultNetworkConfigPath: "/etc/netconfig/network_default.json",
		SetupCommand:             "/usr/sbin/netconfig-setup",
		SocketPath:               "/var/run/netconfig.sock",
		MetricsListen:            "",
	}
}
