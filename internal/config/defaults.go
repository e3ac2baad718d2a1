package config

import "time"

// Central place for all application-wide timing constants and other
// defaults. Changing a value here immediately affects every component that
// imports github.com/linux-automation/tacd/internal/config.

const (
	// DefaultListenAddr serves the REST surface, the WebSocket push bus,
	// and /metrics on a single HTTP server, matching spec.md §6 which
	// describes one network API surface rather than per-protocol ports.
	DefaultListenAddr = ":8080"

	// DefaultAuthorizedKeysPath is the file the gated
	// /v1/tac/ssh/authorized_keys endpoint writes to and
	// internal/config's fsnotify watch observes for out-of-band changes.
	DefaultAuthorizedKeysPath = "/home/tacd/.ssh/authorized_keys"

	DefaultUpdateChannelURL      = "http://localhost:8080/update-manifest.json"
	DefaultUpdatePollingInterval = 10 * time.Minute

	DefaultIOBusURL           = "http://localhost:8081"
	DefaultIOBusPollInterval  = 2 * time.Second
	DefaultIOBusStaleAfter    = 10 * time.Second
	DefaultNetinfoPollInterval = 5 * time.Second
	DefaultRaucPollInterval   = 5 * time.Second
	DefaultSystemdPollInterval = 5 * time.Second

	DefaultJournalHistoryLen = 100
)
