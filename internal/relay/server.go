// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package relay

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/validation"
)

const (
	maxPageSize    = 100
	searchLimit    = 20
	maxBodyBytes   = 64 << 10
	devTokenTTL    = 24 * time.Hour
	defaultRPS     = 100
	defaultWindow  = time.Minute
	corsMaxAgeSecs = 86400
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow time.Duration
	DevTokens       bool
}

// ServerConfigFrom converts the relay configuration.
func ServerConfigFrom(c config.RelayConfig) ServerConfig {
	return ServerConfig{
		CORSOrigins:     c.CORSOrigins,
		RateLimitReqs:   c.RateLimitReqs,
		RateLimitWindow: c.RateLimitWindow,
		DevTokens:       c.DevTokens,
	}
}

// Server serves the REST API and websocket endpoint.
type Server struct {
	cfg      ServerConfig
	auth     *Authenticator
	hub      *Hub
	store    Store
	upgrader websocket.Upgrader
	router   chi.Router
	log      zerolog.Logger
}

// NewServer wires the router.
func NewServer(cfg ServerConfig, auth *Authenticator, hub *Hub, store Store) *Server {
	if cfg.RateLimitReqs <= 0 {
		cfg.RateLimitReqs = defaultRPS
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaultWindow
	}
	s := &Server{
		cfg:   cfg,
		auth:  auth,
		hub:   hub,
		store: store,
		log:   logging.WithComponent("relay-http"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         corsMaxAgeSecs,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebsocket)

	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(
			s.cfg.RateLimitReqs,
			s.cfg.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded")
			}),
		))

		if s.cfg.DevTokens {
			r.Post("/api/dev/token", s.handleDevToken)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/api/chat/conversations", s.handleListConversations)
			r.Post("/api/chat/conversations", s.handleCreateConversation)
			r.Get("/api/chat/conversations/{id}/messages", s.handleListMessages)
			r.Post("/api/chat/conversations/{id}/messages", s.handleSendMessage)
			r.Put("/api/chat/messages/{id}/read", s.handleMarkRead)
			r.Get("/api/users/search", s.handleSearchUsers)
		})
	})
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.CORSOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.CORSOrigins, "*") || slices.Contains(s.cfg.CORSOrigins, origin)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.Validate(bearerToken(r))
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade refused")
		writeError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "authentication required")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	NewClient(s.hub, conn, claims.Subject, claims.Username).Run(r.Context())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeBadRequest, "malformed request body")
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		writeValidationError(w, verr)
		return false
	}
	return true
}

func (s *Server) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, _, err := s.auth.Issue(req.UserID, req.UserID, devTokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrCodeInternal, "token signing failed")
		return
	}
	ctx, cancel := opContext(r)
	defer cancel()
	if err := s.store.PutUser(ctx, models.User{ID: req.UserID, Username: req.UserID}); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, models.TokenResponse{Token: token})
}

func userID(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return c.Subject
	}
	return ""
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opContext(r)
	defer cancel()
	list, err := s.store.ListConversations(ctx, userID(r))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Conversation{}
	}
	writeData(w, http.StatusOK, list)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	self := userID(r)
	if req.ParticipantID == self {
		writeError(w, http.StatusBadRequest, models.ErrCodeBadRequest, "cannot start a conversation with yourself")
		return
	}
	ctx, cancel := opContext(r)
	defer cancel()
	conv, err := s.store.CreateConversation(ctx, self, req.ParticipantID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, conv)
}

// conversationFor loads the path conversation and checks membership.
func (s *Server) conversationFor(w http.ResponseWriter, r *http.Request) (models.Conversation, bool) {
	ctx, cancel := opContext(r)
	defer cancel()
	conv, err := s.store.Conversation(ctx, chi.URLParam(r, "id"))
	if err == nil && !conv.HasParticipant(userID(r)) {
		err = ErrNotMember
	}
	if err != nil {
		writeStoreError(w, r, err)
		return models.Conversation{}, false
	}
	return conv, true
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFor(w, r)
	if !ok {
		return
	}
	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", 30), maxPageSize)

	ctx, cancel := opContext(r)
	defer cancel()
	msgs, err := s.store.ListMessages(ctx, conv.ID, page, limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeData(w, http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.conversationFor(w, r)
	if !ok {
		return
	}
	var req models.SendMessagePayload
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID != conv.ID {
		writeError(w, http.StatusBadRequest, models.ErrCodeBadRequest, "conversation id mismatch")
		return
	}
	if !conv.FriendshipStatus.CanSend() {
		writeError(w, http.StatusForbidden, models.ErrCodeForbidden, "conversation is "+string(conv.FriendshipStatus))
		return
	}
	typ := req.Type
	if typ == "" {
		typ = models.MessageText
	}

	ctx, cancel := opContext(r)
	defer cancel()
	msg, err := s.store.AppendMessage(ctx, models.Message{
		ClientID:       req.ClientMessageID,
		ConversationID: conv.ID,
		SenderID:       userID(r),
		Content:        req.Content,
		Type:           typ,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.hub.toConversation(conv, models.EventMessageNew, msg)
	writeData(w, http.StatusOK, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	self := userID(r)
	ctx, cancel := opContext(r)
	defer cancel()

	msg, err := s.store.MarkRead(ctx, chi.URLParam(r, "id"), self)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	conv, err := s.store.Conversation(ctx, msg.ConversationID)
	if err == nil && !conv.HasParticipant(self) {
		err = ErrNotMember
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.hub.toConversation(conv, models.EventMessageRead, models.ReadEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		UserID:         self,
	})
	writeData(w, http.StatusOK, nil)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, models.ErrCodeBadRequest, "q is required")
		return
	}
	ctx, cancel := opContext(r)
	defer cancel()
	users, err := s.store.SearchUsers(ctx, q, searchLimit+1)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	self := userID(r)
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != self && len(out) < searchLimit {
			out = append(out, u)
		}
	}
	writeData(w, http.StatusOK, out)
}
