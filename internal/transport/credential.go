// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialSource yields the session bearer token on every (re)connect.
type CredentialSource interface {
	Token() (string, error)
}

// StaticToken is a CredentialSource for a fixed token.
type StaticToken string

// Token implements CredentialSource.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() (string, error)

// Token implements CredentialSource.
func (f CredentialFunc) Token() (string, error) {
	return f()
}

// Claims is what the client reads from its own token. The signature is
// not verified here; the server does that during the handshake.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// InspectToken checks that token is present and unexpired and extracts the
// user id from "sub", "userId" or "id".
func InspectToken(token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Claims{}, ErrAuthRequired
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: malformed token: %v", ErrAuthRequired, err)
	}

	var c Claims
	if exp, err := mc.GetExpirationTime(); err != nil {
		return Claims{}, fmt.Errorf("%w: bad exp claim: %v", ErrAuthRequired, err)
	} else if exp != nil {
		c.ExpiresAt = exp.Time
		if !now.Before(exp.Time) {
			return c, ErrCredentialExpired
		}
	}

	if sub, _ := mc.GetSubject(); sub != "" {
		c.UserID = sub
	} else if id, ok := mc["userId"].(string); ok {
		c.UserID = id
	} else if id, ok := mc["id"].(string); ok {
		c.UserID = id
	}
	return c, nil
}
