// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/transport"
)

var (
	// ErrUnauthorized matches 401 responses.
	ErrUnauthorized = errors.New("rest: unauthorized")

	// ErrUnavailable matches requests refused by the open circuit breaker.
	ErrUnavailable = errors.New("rest: service unavailable")
)

// APIError is a non-success response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rest: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("rest: %d: %s", e.Status, e.Message)
}

// Is matches ErrUnauthorized for 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// ConfigFrom converts the application REST configuration.
func ConfigFrom(c config.RESTConfig) Config {
	return Config{
		BaseURL:        c.BaseURL,
		Timeout:        c.Timeout,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
	}
}

// Client talks to the chat REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	cred    transport.CredentialSource
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// New creates a client authenticating with cred.
func New(cfg Config, cred transport.CredentialSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cred:    cred,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.RateLimitBurst),
		cb:      newBreaker(),
	}
}

// request describes one API call. endpoint labels metrics.
type request struct {
	endpoint string
	method   string
	path     string
	query    url.Values
	body     any
}

// ListConversations returns the caller's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do(ctx, request{
		endpoint: "list_conversations",
		method:   http.MethodGet,
		path:     "/api/chat/conversations",
	}, &out)
	return out, err
}

// CreateConversation returns the conversation with participantID, creating
// it if needed.
func (c *Client) CreateConversation(ctx context.Context, participantID string) (models.Conversation, error) {
	var out models.Conversation
	err := c.do(ctx, request{
		endpoint: "create_conversation",
		method:   http.MethodPost,
		path:     "/api/chat/conversations",
		body:     models.CreateConversationRequest{ParticipantID: participantID},
	}, &out)
	return out, err
}

// ListMessages returns one page of history, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []models.Message
	err := c.do(ctx, request{
		endpoint: "list_messages",
		method:   http.MethodGet,
		path:     "/api/chat/conversations/" + url.PathEscape(conversationID) + "/messages",
		query:    q,
	}, &out)
	return out, err
}

// SendMessage posts a message and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, p models.SendMessagePayload) (models.Message, error) {
	var out models.Message
	err := c.do(ctx, request{
		endpoint: "send_message",
		method:   http.MethodPost,
		path:     "/api/chat/conversations/" + url.PathEscape(p.ConversationID) + "/messages",
		body:     p,
	}, &out)
	return out, err
}

// MarkRead records a read receipt for messageID.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, request{
		endpoint: "mark_read",
		method:   http.MethodPut,
		path:     "/api/chat/messages/" + url.PathEscape(messageID) + "/read",
	}, nil)
}

// SearchUsers looks users up by name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var out []models.User
	err := c.do(ctx, request{
		endpoint: "search_users",
		method:   http.MethodGet,
		path:     "/api/users/search",
		query:    url.Values{"q": []string{query}},
	}, &out)
	return out, err
}

// do runs r and decodes the data member into out when out is non-nil.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rest: %s: %w", r.endpoint, err)
	}

	token, err := c.cred.Token()
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return transport.ErrAuthRequired
	}

	data, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, r, token)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Str("endpoint", r.endpoint).Msg("[CIRCUIT BREAKER] Request rejected")
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}

	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rest: %s: decode data: %w", r.endpoint, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, r request, token string) ([]byte, error) {
	var body io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("rest: %s: encode body: %w", r.endpoint, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("rest: %s: create request: %w", r.endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(token, "Bearer "))
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRESTRequest(r.endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("rest: %s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordRESTRequest(r.endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("rest: %s: read body: %w", r.endpoint, err)
	}

	var env models.APIResponse
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || decodeErr != nil || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
		} else if decodeErr != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			apiErr.Message = "malformed response: " + decodeErr.Error()
		}
		return nil, apiErr
	}
	return env.Data, nil
}
