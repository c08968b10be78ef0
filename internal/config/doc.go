// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

/*
Package config loads configuration for realtime sessions and the relay.

Configuration is layered with koanf, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, else config.yaml, config.yml,
    /etc/spacezone/config.yaml, /etc/spacezone/config.yml
 3. Environment variables, through an explicit name mapping

Example file:

	transport:
	  url: wss://chat.example.com/ws
	  ack_timeout: 10s
	  reconnect_attempts: 5
	call:
	  ice_servers:
	    - stun:stun.l.google.com:19302
	relay:
	  port: 5000
	  store: badger
	  store_path: /data/spacezone/relay

Common environment variables:

	WS_URL, WS_ACK_TIMEOUT, WS_RECONNECT_ATTEMPTS
	API_URL, API_TIMEOUT
	TYPING_IDLE, TYPING_EXPIRY
	CALL_COOLDOWN, ICE_SERVERS (comma separated)
	RELAY_PORT, JWT_SECRET, RELAY_STORE, RELAY_STORE_PATH, CORS_ORIGINS
	LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Durations use Go syntax ("1s", "500ms").
*/
package config
