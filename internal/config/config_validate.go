// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/logging"
)

// minJWTSecretLength applies to the relay signing secret.
const minJWTSecretLength = 32

// Validate checks the client-side sections. The relay section is checked
// separately by ValidateRelay because client binaries never read it.
func (c *Config) Validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateREST(); err != nil {
		return err
	}
	if err := c.validateChat(); err != nil {
		return err
	}
	if err := c.validatePresence(); err != nil {
		return err
	}
	if err := c.validateCall(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTransport() error {
	t := c.Transport
	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("WS_URL must be a ws:// or wss:// URL, got %q", t.URL)
	}
	if err := positive("WS_HANDSHAKE_TIMEOUT", t.HandshakeTimeout); err != nil {
		return err
	}
	if err := positive("WS_ACK_TIMEOUT", t.AckTimeout); err != nil {
		return err
	}
	if err := positive("WS_RECONNECT_INITIAL", t.ReconnectInitial); err != nil {
		return err
	}
	if t.ReconnectMax < t.ReconnectInitial {
		return fmt.Errorf("WS_RECONNECT_MAX (%s) must not be below WS_RECONNECT_INITIAL (%s)", t.ReconnectMax, t.ReconnectInitial)
	}
	if t.ReconnectAttempts < 0 {
		return fmt.Errorf("WS_RECONNECT_ATTEMPTS must be >= 0, got %d", t.ReconnectAttempts)
	}
	if err := positive("WS_PING_INTERVAL", t.PingInterval); err != nil {
		return err
	}
	if t.ReadTimeout <= t.PingInterval {
		return fmt.Errorf("WS_READ_TIMEOUT (%s) must exceed WS_PING_INTERVAL (%s)", t.ReadTimeout, t.PingInterval)
	}
	return nil
}

func (c *Config) validateREST() error {
	u, err := url.Parse(c.REST.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_URL must be an http:// or https:// URL, got %q", c.REST.BaseURL)
	}
	if err := positive("API_TIMEOUT", c.REST.Timeout); err != nil {
		return err
	}
	if c.REST.RateLimitRPS < 0 || c.REST.RateLimitBurst < 0 {
		return fmt.Errorf("API rate limits must not be negative")
	}
	return nil
}

func (c *Config) validateChat() error {
	if err := positive("CHAT_RECONCILE_WINDOW", c.Chat.ReconcileWindow); err != nil {
		return err
	}
	if c.Chat.PageSize < 1 || c.Chat.PageSize > 200 {
		return fmt.Errorf("CHAT_PAGE_SIZE must be between 1 and 200, got %d", c.Chat.PageSize)
	}
	return nil
}

func (c *Config) validatePresence() error {
	if err := positive("TYPING_IDLE", c.Presence.TypingIdle); err != nil {
		return err
	}
	if c.Presence.TypingExpiry <= c.Presence.TypingIdle {
		return fmt.Errorf("TYPING_EXPIRY (%s) must exceed TYPING_IDLE (%s)", c.Presence.TypingExpiry, c.Presence.TypingIdle)
	}
	return nil
}

func (c *Config) validateCall() error {
	if c.Call.Cooldown < 0 {
		return fmt.Errorf("CALL_COOLDOWN must not be negative")
	}
	for _, s := range c.Call.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			return fmt.Errorf("ICE_SERVERS entry %q must use a stun:, turn: or turns: scheme", s)
		}
	}
	if err := positive("CALL_MEDIA_TIMEOUT", c.Call.MediaTimeout); err != nil {
		return err
	}
	return positive("CALL_NEGOTIATION_TIMEOUT", c.Call.NegotiationTimeout)
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// ValidateRelay checks the relay section.
func (c *Config) ValidateRelay() error {
	r := c.Relay
	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("RELAY_PORT must be between 1 and 65535, got %d", r.Port)
	}
	if len(r.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	switch r.Store {
	case StoreMemory:
	case StoreBadger:
		if r.StorePath == "" {
			return fmt.Errorf("RELAY_STORE_PATH is required when RELAY_STORE=badger")
		}
	default:
		return fmt.Errorf("RELAY_STORE must be %q or %q, got %q", StoreMemory, StoreBadger, r.Store)
	}
	if r.RateLimitReqs < 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_REQS must not be negative")
	}
	if r.RateLimitReqs > 0 && r.RateLimitWindow <= 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return positive("RELAY_SHUTDOWN_TIMEOUT", r.ShutdownTimeout)
}

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}
