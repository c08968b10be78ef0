// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package models

import (
	"bytes"

	"github.com/goccy/go-json"
)

// APIResponse is the REST envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "conversation not found"}}
//
// Older endpoints send the error as a bare string; APIError accepts both.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// APIError is the error member of APIResponse.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// UnmarshalJSON accepts either an object or a string.
func (e *APIError) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.Message)
	}
	type plain APIError
	return json.Unmarshal(b, (*plain)(e))
}

// Error codes used by the relay REST API.
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// CreateConversationRequest is the body of POST /api/chat/conversations.
type CreateConversationRequest struct {
	ParticipantID string `json:"participantId" validate:"required,max=128"`
}

// TokenRequest is the body of the relay development token endpoint.
type TokenRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// TokenResponse carries a signed bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}
