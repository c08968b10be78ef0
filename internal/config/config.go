// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package config

import "time"

// Config is the complete configuration of a realtime client session and of
// the development relay. Every section is loaded by LoadWithKoanf.
type Config struct {
	Transport TransportConfig `koanf:"transport"`
	REST      RESTConfig      `koanf:"rest"`
	Chat      ChatConfig      `koanf:"chat"`
	Presence  PresenceConfig  `koanf:"presence"`
	Call      CallConfig      `koanf:"call"`
	Relay     RelayConfig     `koanf:"relay"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// TransportConfig configures the websocket connection manager.
type TransportConfig struct {
	// URL is the websocket endpoint of the realtime server (ws:// or wss://).
	URL string `koanf:"url"`

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// AckTimeout bounds every acknowledged send. A send that is not
	// acknowledged in time fails with a timeout, distinct from a rejection.
	AckTimeout time.Duration `koanf:"ack_timeout"`

	// Reconnect policy: delays start at ReconnectInitial, double per attempt,
	// are capped at ReconnectMax, and stop after ReconnectAttempts.
	ReconnectInitial  time.Duration `koanf:"reconnect_initial"`
	ReconnectMax      time.Duration `koanf:"reconnect_max"`
	ReconnectAttempts int           `koanf:"reconnect_attempts"`

	// PingInterval is the keepalive period; ReadTimeout the pong deadline.
	PingInterval time.Duration `koanf:"ping_interval"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
}

// RESTConfig configures the REST collaborator client.
type RESTConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"`
	RateLimitBurst int           `koanf:"rate_limit_burst"`
}

// ChatConfig configures the conversation/message store.
type ChatConfig struct {
	// ReconcileWindow is the maximum distance between an optimistic message
	// and its server echo for the content heuristic to pair them.
	ReconcileWindow time.Duration `koanf:"reconcile_window"`

	// PageSize is the number of messages requested per history page.
	PageSize int `koanf:"page_size"`

	// ClientIDs sends the temporary id with each message so servers that
	// echo it allow exact reconciliation.
	ClientIDs bool `koanf:"client_ids"`
}

// PresenceConfig configures typing indicators.
type PresenceConfig struct {
	// TypingIdle is the local inactivity after which typing-stop is emitted.
	TypingIdle time.Duration `koanf:"typing_idle"`

	// TypingExpiry drops a remote typing indicator not refreshed in time.
	TypingExpiry time.Duration `koanf:"typing_expiry"`
}

// CallConfig configures the call negotiation engine.
type CallConfig struct {
	// Cooldown is how long a locally ended call stays in the ended state.
	Cooldown time.Duration `koanf:"cooldown"`

	// ICEServers lists STUN/TURN URLs.
	ICEServers []string `koanf:"ice_servers"`

	MediaTimeout       time.Duration `koanf:"media_timeout"`
	NegotiationTimeout time.Duration `koanf:"negotiation_timeout"`
}

// RelayConfig configures the development relay server.
type RelayConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	JWTSecret       string        `koanf:"jwt_secret"`
	Store           string        `koanf:"store"`
	StorePath       string        `koanf:"store_path"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	DevTokens       bool          `koanf:"dev_tokens"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config for the koanf layers.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Store backends accepted by RelayConfig.Store.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Addr returns the relay listen address.
func (r RelayConfig) Addr() string {
	return joinHostPort(r.Host, r.Port)
}
