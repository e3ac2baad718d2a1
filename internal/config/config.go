// Package config loads tacd's configuration: defaults, an optional YAML
// file, and environment/flag overrides in that order, the same layering
// the teacher applies in cmd/byd-hass/main.go (GetDefaultConfig + flag.*
// seeded from getEnvOrDefault).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/linux-automation/tacd/internal/updatechannel"
)

// Config holds every option tacd needs at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogJSON    bool   `yaml:"log_json"`
	Verbose    bool   `yaml:"verbose"`

	AuthorizedKeysPath string `yaml:"authorized_keys_path"`

	IOBusURL          string        `yaml:"iobus_url"`
	IOBusPollInterval time.Duration `yaml:"iobus_poll_interval"`
	IOBusStaleAfter   time.Duration `yaml:"iobus_stale_after"`

	NetinfoPollInterval  time.Duration `yaml:"netinfo_poll_interval"`
	RaucPollInterval     time.Duration `yaml:"rauc_poll_interval"`
	SystemdPollInterval  time.Duration `yaml:"systemd_poll_interval"`
	JournalHistoryLen    int           `yaml:"journal_history_len"`

	UpdateChannels []UpdateChannelConfig `yaml:"update_channels"`
}

// UpdateChannelConfig mirrors updatechannel.Config at the YAML boundary,
// kept separate so updatechannel.Config carries no YAML struct tags;
// UpdateChannelConfigs converts between the two.
type UpdateChannelConfig struct {
	Name            string        `yaml:"name"`
	DisplayName     string        `yaml:"display_name"`
	Description     string        `yaml:"description"`
	URL             string        `yaml:"url"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	Enabled         bool          `yaml:"enabled"`
	Primary         bool          `yaml:"primary"`
}

// Default returns a Config with sensible defaults, mirroring the
// teacher's GetDefaultConfig.
func Default() *Config {
	return &Config{
		ListenAddr:          DefaultListenAddr,
		AuthorizedKeysPath:  DefaultAuthorizedKeysPath,
		IOBusURL:            DefaultIOBusURL,
		IOBusPollInterval:   DefaultIOBusPollInterval,
		IOBusStaleAfter:     DefaultIOBusStaleAfter,
		NetinfoPollInterval: DefaultNetinfoPollInterval,
		RaucPollInterval:    DefaultRaucPollInterval,
		SystemdPollInterval: DefaultSystemdPollInterval,
		JournalHistoryLen:   DefaultJournalHistoryLen,
		UpdateChannels: []UpdateChannelConfig{
			{
				Name:            "stable",
				DisplayName:     "Stable",
				URL:             DefaultUpdateChannelURL,
				PollingInterval: DefaultUpdatePollingInterval,
				Enabled:         true,
				Primary:         true,
			},
		},
	}
}

// Load reads defaults, then overlays path (if non-empty and the file
// exists), then environment variables, returning a validated Config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ListenAddr = getEnvOrDefault("TACD_LISTEN_ADDR", cfg.ListenAddr)
	cfg.AuthorizedKeysPath = getEnvOrDefault("TACD_AUTHORIZED_KEYS_PATH", cfg.AuthorizedKeysPath)
	cfg.IOBusURL = getEnvOrDefault("TACD_IOBUS_URL", cfg.IOBusURL)
	cfg.Verbose = getEnvOrDefault("TACD_VERBOSE", boolStr(cfg.Verbose)) == "true"
	cfg.LogJSON = getEnvOrDefault("TACD_LOG_JSON", boolStr(cfg.LogJSON)) == "true"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Validate rejects a Config that would leave wire-up unable to start.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	havePrimary := false
	for _, ch := range c.UpdateChannels {
		if ch.Primary {
			havePrimary = true
		}
	}
	if len(c.UpdateChannels) > 0 && !havePrimary {
		return fmt.Errorf("config: at least one update channel must be marked primary")
	}
	return nil
}

// NewLogger builds the logrus.Logger the rest of the daemon shares,
// matching the teacher's setupLogger (TextFormatter with FullTimestamp
// interactively) plus the --log-json escape hatch for running under
// systemd, named as an expansion in SPEC_FULL.md's ambient stack.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if c.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	if c.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// WatchAuthorizedKeys calls onChange whenever the authorized-keys file is
// written, so SSH key rotation performed via the gated REST endpoint is
// observed without a daemon restart. The returned watcher must be closed
// by the caller.
func WatchAuthorizedKeys(path string, logger *logrus.Logger, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating fsnotify watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config: authorized-keys watcher error")
			}
		}
	}()

	return watcher, nil
}

// UpdateChannelConfigs adapts the YAML-facing shape to
// updatechannel.Poller's constructor argument.
func (c *Config) UpdateChannelConfigs() []updatechannel.Config {
	out := make([]updatechannel.Config, 0, len(c.UpdateChannels))
	for _, ch := range c.UpdateChannels {
		out = append(out, updatechannel.Config{
			Name:            ch.Name,
			DisplayName:     ch.DisplayName,
			Description:     ch.Description,
			URL:             ch.URL,
			PollingInterval: ch.PollingInterval,
			Enabled:         ch.Enabled,
			Primary:         ch.Primary,
		})
	}
	return out
}
