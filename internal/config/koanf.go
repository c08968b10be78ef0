// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/spacezone/config.yaml",
	"/etc/spacezone/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// sliceConfigPaths are accepted as comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"call.ice_servers",
	"relay.cors_origins",
}

// envMappings maps lowercased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"ws_url":                   "transport.url",
	"ws_handshake_timeout":     "transport.handshake_timeout",
	"ws_ack_timeout":           "transport.ack_timeout",
	"ws_reconnect_initial":     "transport.reconnect_initial",
	"ws_reconnect_max":         "transport.reconnect_max",
	"ws_reconnect_attempts":    "transport.reconnect_attempts",
	"ws_ping_interval":         "transport.ping_interval",
	"ws_read_timeout":          "transport.read_timeout",
	"api_url":                  "rest.base_url",
	"api_timeout":              "rest.timeout",
	"api_rate_limit_rps":       "rest.rate_limit_rps",
	"api_rate_limit_burst":     "rest.rate_limit_burst",
	"chat_reconcile_window":    "chat.reconcile_window",
	"chat_page_size":           "chat.page_size",
	"chat_client_ids":          "chat.client_ids",
	"typing_idle":              "presence.typing_idle",
	"typing_expiry":            "presence.typing_expiry",
	"call_cooldown":            "call.cooldown",
	"ice_servers":              "call.ice_servers",
	"call_media_timeout":       "call.media_timeout",
	"call_negotiation_timeout": "call.negotiation_timeout",
	"relay_host":               "relay.host",
	"relay_port":               "relay.port",
	"jwt_secret":               "relay.jwt_secret",
	"relay_store":              "relay.store",
	"relay_store_path":         "relay.store_path",
	"cors_origins":             "relay.cors_origins",
	"relay_rate_limit_reqs":    "relay.rate_limit_reqs",
	"relay_rate_limit_window":  "relay.rate_limit_window",
	"relay_dev_tokens":         "relay.dev_tokens",
	"relay_shutdown_timeout":   "relay.shutdown_timeout",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
}

// defaultConfig returns the configuration applied before file and env layers.
func defaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			URL:               "ws://localhost:5000/ws",
			HandshakeTimeout:  10 * time.Second,
			AckTimeout:        10 * time.Second,
			ReconnectInitial:  1 * time.Second,
			ReconnectMax:      5 * time.Second,
			ReconnectAttempts: 5,
			PingInterval:      30 * time.Second,
			ReadTimeout:       60 * time.Second,
		},
		REST: RESTConfig{
			BaseURL:        "http://localhost:5000",
			Timeout:        15 * time.Second,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Chat: ChatConfig{
			ReconcileWindow: 10 * time.Second,
			PageSize:        30,
			ClientIDs:       true,
		},
		Presence: PresenceConfig{
			TypingIdle:   1 * time.Second,
			TypingExpiry: 5 * time.Second,
		},
		Call: CallConfig{
			Cooldown: 2 * time.Second,
			ICEServers: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
			MediaTimeout:       30 * time.Second,
			NegotiationTimeout: 15 * time.Second,
		},
		Relay: RelayConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			Store:           StoreMemory,
			StorePath:       "/data/spacezone/relay",
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in defaults without reading the file or
// environment layers.
func Default() *Config {
	return defaultConfig()
}

// Load is the entry point used by binaries.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// LoadWithKoanf loads configuration in three layers: struct defaults, an
// optional YAML file, then environment variables. The result is validated.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// processSliceFields splits comma-separated env values into string slices.
// Values that are already slices (YAML lists) are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
