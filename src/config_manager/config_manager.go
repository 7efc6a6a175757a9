// Package config_manager loads and maintains the daemon's config.json.
package config_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
)

// CurrentConfigVersion is written to every config the daemon saves.
const CurrentConfigVersion = "v0.1.0"

// DefaultConfigPath is used unless NETCONFIG_CONFIG_PATH is set.
const DefaultConfigPath = "/etc/netconfig/config.json"

var logger = logrus.WithField("module", "config_manager")

// ConfigFilePath returns the config.json location for this process.
func ConfigFilePath() string {
	if path := os.Getenv("NETCONFIG_CONFIG_PATH"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// ConfigManager owns the daemon configuration file.
type ConfigManager struct {
	FilePath string
	config   *Config
}

// NewConfigManager creates a ConfigManager and makes sure a usable config
// file exists at filePath.
func NewConfigManager(filePath string) (*ConfigManager, error) {
	cm := &ConfigManager{FilePath: filePath}
	config, err := cm.EnsureDefaultConfig()
	if err != nil {
		return nil, err
	}
	cm.config = config
	return cm, nil
}

// GetConfig returns the loaded configuration.
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// LoadConfig reads the config file.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	return LoadConfig(cm.FilePath)
}

// SaveConfig writes config to the config file.
func (cm *ConfigManager) SaveConfig(config *Config) error {
	if err := os.MkdirAll(filepath.Dir(cm.FilePath), 0755); err != nil {
		return err
	}
	return SaveConfig(cm.FilePath, config)
}

// EnsureDefaultConfig loads the config file, writing defaults when it is
// missing or empty. An unreadable file is moved aside and replaced. Files
// from older versions get defaults for fields they lack.
func (cm *ConfigManager) EnsureDefaultConfig() (*Config, error) {
	config, err := cm.LoadConfig()
	if err != nil {
		if _, statErr := os.Stat(cm.FilePath); statErr != nil {
			return nil, err
		}
		backup := fmt.Sprintf("%s.bak-%d", cm.FilePath, time.Now().Unix())
		logger.WithError(err).WithField("backup", backup).Warn("Config file is malformed, replacing it with defaults")
		if renameErr := os.Rename(cm.FilePath, backup); renameErr != nil {
			return nil, fmt.Errorf("failed to back up malformed config: %w", renameErr)
		}
		config = nil
	}

	changed := false
	if config == nil {
		config = NewDefaultConfig()
		changed = true
	} else if isOlder(config.ConfigVersion, CurrentConfigVersion) {
		logger.WithFields(logrus.Fields{
			"from": config.ConfigVersion,
			"to":   CurrentConfigVersion,
		}).Info("Migrating config file")
		fillDefaults(config, NewDefaultConfig())
		config.ConfigVersion = CurrentConfigVersion
		changed = true
	}

	if changed {
		if err := cm.SaveConfig(config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// isOlder reports whether have predates want. Unparsable versions count as older.
func isOlder(have, want string) bool {
	wantV, err := version.NewVersion(want)
	if err != nil {
		return false
	}
	haveV, err := version.NewVersion(have)
	if err != nil {
		return true
	}
	return haveV.LessThan(wantV)
}

func fillDefaults(c, d *Config) {
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = d.Store.RedisURL
	}
	if c.Store.BuntPath == "" {
		c.Store.BuntPath = d.Store.BuntPath
	}
	if c.Store.Key == "" {
		c.Store.Key = d.Store.Key
	}
	if c.Store.FlushDelay == 0 {
		c.Store.FlushDelay = d.Store.FlushDelay
	}

	if c.Wpa.CLIPath == "" {
		c.Wpa.CLIPath = d.Wpa.CLIPath
	}
	if c.Wpa.RuntimeFolder == "" {
		c.Wpa.RuntimeFolder = d.Wpa.RuntimeFolder
	}
	if c.Wpa.PollInterval == 0 {
		c.Wpa.PollInterval = d.Wpa.PollInterval
	}
	if c.Wpa.SwitchTimeout == 0 {
		c.Wpa.SwitchTimeout = d.Wpa.SwitchTimeout
	}

	if len(c.Liveness.Resolvers) == 0 {
		c.Liveness.Resolvers = d.Liveness.Resolvers
	}
	if c.Liveness.MinSuccess == 0 {
		c.Liveness.MinSuccess = d.Liveness.MinSuccess
	}
	if c.Liveness.DNSTimeout == 0 {
		c.Liveness.DNSTimeout = d.Liveness.DNSTimeout
	}
	if c.Liveness.ProbeHost == "" {
		c.Liveness.ProbeHost = d.Liveness.ProbeHost
	}
	if len(c.Liveness.HTTPSites) == 0 {
		c.Liveness.HTTPSites = d.Liveness.HTTPSites
	}
	if c.Liveness.HTTPTimeout == 0 {
		c.Liveness.HTTPTimeout = d.Liveness.HTTPTimeout
	}

	if c.DefaultNetworkConfigPath == "" {
		c.DefaultNetworkConfigPath = d.DefaultNetworkConfigPath
	}
	if c.SetupCommand == "" {
		c.SetupCommand = d.SetupCommand
	}
	if c.SocketPath == "" {
		c.SocketPath = d.SocketPath
	}
}
