// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/spacezone-realtime/internal/config"
	"github.com/tomtom215/spacezone-realtime/internal/logging"
	"github.com/tomtom215/spacezone-realtime/internal/media"
	"github.com/tomtom215/spacezone-realtime/internal/metrics"
	"github.com/tomtom215/spacezone-realtime/internal/models"
	"github.com/tomtom215/spacezone-realtime/internal/peer"
)

// Signaler sends call signaling events to the realtime server.
type Signaler interface {
	Emit(event string, payload any) error
}

// Config configures an Engine.
type Config struct {
	// Cooldown is how long a locally ended call stays in StateEnded.
	Cooldown time.Duration

	MediaTimeout       time.Duration
	NegotiationTimeout time.Duration
	ICEServers         []string
}

// ConfigFrom converts the application call configuration.
func ConfigFrom(c config.CallConfig) Config {
	return Config{
		Cooldown:           c.Cooldown,
		MediaTimeout:       c.MediaTimeout,
		NegotiationTimeout: c.NegotiationTimeout,
		ICEServers:         append([]string(nil), c.ICEServers...),
	}
}

func (c *Config) applyDefaults() {
	if c.MediaTimeout <= 0 {
		c.MediaTimeout = 30 * time.Second
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = 15 * time.Second
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
}

// session is one call attempt. id, peerID, typ and dir never change after
// creation; everything else is guarded by Engine.mu.
type session struct {
	id     string
	peerID string
	typ    models.CallType
	dir    Direction

	state       State
	startedAt   time.Time
	connectedAt time.Time
	reason      EndReason

	remoteOffer   peer.SessionDescription
	remoteSet     bool
	answered      bool
	accepting     bool
	signaled      bool
	remotePending []peer.ICECandidate
	localPending  []peer.ICECandidate

	stream   media.Stream
	conn     peer.Conn
	cancel   context.CancelFunc
	released bool

	audio bool
	video bool
}

type listener struct {
	id uint64
	fn func(Snapshot)
}

// Engine drives one-to-one calls. It is safe for concurrent use; the
// Handle methods are meant to be called from transport handlers.
type Engine struct {
	cfg     Config
	sig     Signaler
	devices media.Devices
	peers   peer.Factory
	log     zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	sess      *session
	lastEnd   EndReason
	cooldown  *time.Timer
	listeners []listener
	nextID    uint64

	notifyMu   sync.Mutex
	dirty      bool
	delivering bool
}

// NewEngine creates an idle engine.
func NewEngine(cfg Config, sig Signaler, devices media.Devices, peers peer.Factory) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:     cfg,
		sig:     sig,
		devices: devices,
		peers:   peers,
		log:     logging.WithComponent("call"),
		now:     time.Now,
	}
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := e.sess
	if s == nil {
		return Snapshot{State: StateIdle, EndReason: e.lastEnd}
	}
	return Snapshot{
		State:        s.state,
		CallID:       s.id,
		Type:         s.typ,
		Direction:    s.dir,
		PeerID:       s.peerID,
		AudioEnabled: s.audio,
		VideoEnabled: s.video,
		StartedAt:    s.startedAt,
		ConnectedAt:  s.connectedAt,
		EndReason:    s.reason,
	}
}

// OnChange registers fn for state changes and returns its unsubscribe func.
func (e *Engine) OnChange(fn func(Snapshot)) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// StartCall places a call to recipientID. It returns once the offer has
// been sent, with the engine in StateCalling.
func (e *Engine) StartCall(ctx context.Context, recipientID string, typ models.CallType) (Snapshot, error) {
	if !typ.Valid() {
		return e.Snapshot(), ErrInvalidCallType
	}
	if recipientID == "" {
		return e.Snapshot(), errors.New("call: recipient required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.sess != nil {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrAlreadyInCall
	}
	s := &session{
		id:        uuid.NewString(),
		peerID:    recipientID,
		typ:       typ,
		dir:       DirectionOutgoing,
		state:     StateIdle,
		startedAt: e.now(),
		cancel:    cancel,
		audio:     true,
		video:     typ == models.CallVideo,
	}
	e.sess = s
	e.lastEnd = EndNone
	e.mu.Unlock()

	e.log.Info().Str("call_id", s.id).Str("to", recipientID).Str("type", string(typ)).Msg("Starting call")

	stream, err := e.acquire(ctx, typ)
	if err != nil {
		if !e.abort(s, EndMediaUnavailable) {
			return e.Snapshot(), ErrCallAborted
		}
		return e.Snapshot(), err
	}
	if err := e.adopt(s, stream); err != nil {
		return e.Snapshot(), err
	}

	conn, err := e.connect(s, stream)
	if err != nil {
		e.abort(s, EndNegotiationFailed)
		return e.Snapshot(), err
	}

	nctx, ncancel := context.WithTimeout(ctx, e.cfg.NegotiationTimeout)
	defer ncancel()
	offer, err := conn.CreateOffer(nctx)
	if err == nil {
		err = conn.SetLocalDescription(offer)
	}
	if err != nil {
		if !e.abort(s, EndNegotiationFailed) {
			return e.Snapshot(), ErrCallAborted
		}
		return e.Snapshot(), &NegotiationError{Op: "offer", Err: err}
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		e.abort(s, EndNegotiationFailed)
		return e.Snapshot(), &NegotiationError{Op: "offer", Err: err}
	}

	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return e.Snapshot(), ErrCallAborted
	}
	e.setStateLocked(s, StateCalling)
	e.mu.Unlock()
	e.notify()

	err = e.sig.Emit(models.EventCallOffer, models.CallOffer{
		CallID:   s.id,
		To:       s.peerID,
		CallType: typ,
		Offer:    raw,
	})
	if err != nil {
		e.abort(s, EndConnectionFailed)
		return e.Snapshot(), fmt.Errorf("call: sending offer: %w", err)
	}
	e.markSignaled(s)

	return e.Snapshot(), nil
}

// AcceptCall answers the ringing call.
func (e *Engine) AcceptCall(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	s := e.sess
	if s == nil || s.dir != DirectionIncoming || s.state != StateRinging || s.accepting || s.released {
		e.mu.Unlock()
		return ErrInvalidState
	}
	s.accepting = true
	s.cancel = cancel
	offer := s.remoteOffer
	e.mu.Unlock()

	e.log.Info().Str("call_id", s.id).Str("from", s.peerID).Msg("Accepting call")

	stream, err := e.acquire(ctx, s.typ)
	if err != nil {
		if !e.abort(s, EndMediaUnavailable) {
			return ErrCallAborted
		}
		e.signal(models.EventCallDecline, models.CallEnd{
			CallID: s.id,
			To:     s.peerID,
			Reason: models.ReasonMediaUnavailable,
		})
		return err
	}
	if err := e.adopt(s, stream); err != nil {
		return err
	}

	conn, err := e.connect(s, stream)
	if err != nil {
		if !e.fail(s, EndNegotiationFailed) {
			return ErrCallAborted
		}
		return err
	}

	if err := conn.SetRemoteDescription(offer); err != nil {
		if !e.fail(s, EndNegotiationFailed) {
			return ErrCallAborted
		}
		return &NegotiationError{Op: "remote_offer", Err: err}
	}
	e.applyBuffered(s, conn)

	nctx, ncancel := context.WithTimeout(ctx, e.cfg.NegotiationTimeout)
	defer ncancel()
	answer, err := conn.CreateAnswer(nctx)
	if err == nil {
		err = conn.SetLocalDescription(answer)
	}
	var raw json.RawMessage
	if err == nil {
		raw, err = json.Marshal(answer)
	}
	if err != nil {
		if !e.fail(s, EndNegotiationFailed) {
			return ErrCallAborted
		}
		return &NegotiationError{Op: "answer", Err: err}
	}

	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return ErrCallAborted
	}
	e.setStateLocked(s, StateConnecting)
	e.mu.Unlock()
	e.notify()

	err = e.sig.Emit(models.EventCallAnswer, models.CallAnswer{
		CallID: s.id,
		To:     s.peerID,
		Answer: raw,
	})
	if err != nil {
		e.fail(s, EndConnectionFailed)
		return fmt.Errorf("call: sending answer: %w", err)
	}
	e.markSignaled(s)
	return nil
}

// DeclineCall rejects the ringing call. Outside StateRinging it behaves
// like EndCall.
func (e *Engine) DeclineCall() {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.released {
		e.mu.Unlock()
		return
	}
	if s.dir != DirectionIncoming || s.state != StateRinging {
		e.mu.Unlock()
		e.EndCall()
		return
	}
	conn, _ := e.finishLocked(s, EndLocalDecline, true)
	e.mu.Unlock()

	e.closePeer(conn)
	e.signal(models.EventCallDecline, models.CallEnd{
		CallID: s.id,
		To:     s.peerID,
		Reason: models.ReasonDeclined,
	})
	e.notify()
}

// EndCall hangs up. It is a no-op without an active call.
func (e *Engine) EndCall() {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.released {
		e.mu.Unlock()
		return
	}
	if s.dir == DirectionIncoming && s.state == StateRinging && !s.accepting {
		e.mu.Unlock()
		e.DeclineCall()
		return
	}
	// The callee has not heard of an outgoing call still acquiring media.
	signaled := s.state != StateIdle
	conn, _ := e.finishLocked(s, EndLocalHangup, true)
	e.mu.Unlock()

	e.closePeer(conn)
	if signaled {
		e.signal(models.EventCallEnd, models.CallEnd{
			CallID: s.id,
			To:     s.peerID,
			Reason: models.ReasonHangup,
		})
	}
	e.notify()
}

// SetAudioEnabled mutes or unmutes the local microphone.
func (e *Engine) SetAudioEnabled(enabled bool) error {
	return e.toggle(media.KindAudio, enabled)
}

// SetVideoEnabled turns the local camera on or off.
func (e *Engine) SetVideoEnabled(enabled bool) error {
	return e.toggle(media.KindVideo, enabled)
}

func (e *Engine) toggle(kind media.Kind, enabled bool) error {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.released || s.stream == nil {
		e.mu.Unlock()
		return ErrNoActiveCall
	}
	if !media.SetKindEnabled(s.stream, kind, enabled) {
		e.mu.Unlock()
		return fmt.Errorf("%w: no %s track", ErrInvalidState, kind)
	}
	if kind == media.KindAudio {
		s.audio = enabled
	} else {
		s.video = enabled
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// HandleIncoming processes call:incoming. Offers arriving while any
// session exists are declined as busy and ErrBusy is returned.
func (e *Engine) HandleIncoming(o models.CallOffer) error {
	desc, err := peer.DecodeDescription(o.Offer)
	if err == nil && desc.Type != "offer" {
		err = fmt.Errorf("%w: expected offer, got %q", peer.ErrMalformedDescription, desc.Type)
	}
	if err == nil && (o.CallID == "" || o.From == "" || !o.CallType.Valid()) {
		err = errors.New("call: incomplete offer")
	}
	if err != nil {
		e.log.Warn().Err(err).Str("call_id", o.CallID).Msg("Rejecting unusable offer")
		if o.CallID != "" && o.From != "" {
			e.signal(models.EventCallDecline, models.CallEnd{
				CallID: o.CallID,
				To:     o.From,
				Reason: models.ReasonNegotiation,
			})
		}
		return err
	}

	e.mu.Lock()
	if cur := e.sess; cur != nil {
		duplicate := cur.id == o.CallID
		e.mu.Unlock()
		if duplicate {
			return nil
		}
		metrics.RecordBusyRejection()
		e.log.Info().Str("call_id", o.CallID).Str("from", o.From).Msg("Declining offer while busy")
		e.signal(models.EventCallDecline, models.CallEnd{
			CallID: o.CallID,
			To:     o.From,
			Reason: models.ReasonBusy,
		})
		return ErrBusy
	}
	s := &session{
		id:          o.CallID,
		peerID:      o.From,
		typ:         o.CallType,
		dir:         DirectionIncoming,
		state:       StateIdle,
		startedAt:   e.now(),
		remoteOffer: desc,
		audio:       true,
		video:       o.CallType == models.CallVideo,
	}
	e.sess = s
	e.lastEnd = EndNone
	e.setStateLocked(s, StateRinging)
	e.mu.Unlock()

	e.notify()
	return nil
}

// HandleAnswer processes call:answer for the outgoing call.
func (e *Engine) HandleAnswer(a models.CallAnswer) {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.id != a.CallID || s.released || !fromPeer(s, a.From) {
		e.mu.Unlock()
		e.log.Debug().Str("call_id", a.CallID).Str("from", a.From).Msg("Dropping answer for unknown call")
		return
	}
	if s.dir != DirectionOutgoing || s.state != StateCalling || s.answered || s.conn == nil {
		e.mu.Unlock()
		return
	}
	s.answered = true
	conn := s.conn
	e.mu.Unlock()

	desc, err := peer.DecodeDescription(a.Answer)
	if err == nil && desc.Type == "offer" {
		err = fmt.Errorf("%w: expected answer", peer.ErrMalformedDescription)
	}
	if err == nil {
		err = conn.SetRemoteDescription(desc)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("call_id", s.id).Msg("Applying answer failed")
		e.fail(s, EndNegotiationFailed)
		return
	}
	e.applyBuffered(s, conn)
}

// HandleCandidate processes call:ice-candidate.
func (e *Engine) HandleCandidate(c models.CallCandidate) {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.id != c.CallID || s.released || !fromPeer(s, c.From) {
		e.mu.Unlock()
		metrics.RecordStaleCandidate()
		return
	}
	cand, err := peer.DecodeCandidate(c.Candidate)
	if err != nil {
		e.mu.Unlock()
		e.log.Warn().Err(err).Str("call_id", c.CallID).Msg("Dropping malformed candidate")
		return
	}
	if !s.remoteSet {
		s.remotePending = append(s.remotePending, cand)
		e.mu.Unlock()
		return
	}
	conn := s.conn
	e.mu.Unlock()

	if err := conn.AddICECandidate(cand); err != nil {
		e.log.Warn().Err(err).Str("call_id", c.CallID).Msg("Adding remote candidate failed")
	}
}

// HandleRemoteEnd processes call:end, call:decline and call:error. The
// engine returns to idle without a cooldown. Events for another call id or
// from anyone but the current peer are dropped.
func (e *Engine) HandleRemoteEnd(event string, m models.CallEnd) {
	e.mu.Lock()
	s := e.sess
	if s == nil || s.released || m.CallID != s.id || !fromPeer(s, m.From) {
		e.mu.Unlock()
		e.log.Debug().Str("call_id", m.CallID).Str("from", m.From).Msg("Dropping end for unknown call")
		return
	}
	reason := remoteReason(event, m.Reason)
	conn, _ := e.finishLocked(s, reason, false)
	e.mu.Unlock()

	e.log.Info().Str("call_id", s.id).Str("reason", string(reason)).Msg("Call ended by peer")
	e.closePeer(conn)
	e.notify()
}

// fromPeer reports whether signaling from sender belongs to s. Relay
// generated errors carry no sender.
func fromPeer(s *session, sender string) bool {
	return sender == "" || sender == s.peerID
}

func remoteReason(event, reason string) EndReason {
	switch event {
	case models.EventCallDecline:
		if reason == models.ReasonBusy {
			return EndRemoteBusy
		}
		return EndRemoteDecline
	case models.EventCallError:
		return EndRemoteError
	default:
		return EndRemoteHangup
	}
}

// Close ends any call and drops all listeners.
func (e *Engine) Close() {
	e.EndCall()

	e.mu.Lock()
	if e.cooldown != nil {
		e.cooldown.Stop()
		e.cooldown = nil
	}
	if e.sess != nil && e.sess.released {
		e.recordTransition(e.sess.state, StateIdle)
		e.sess = nil
	}
	e.listeners = nil
	e.mu.Unlock()
}

// acquire bounds media acquisition by MediaTimeout. A stream delivered
// after the deadline is stopped.
func (e *Engine) acquire(ctx context.Context, typ models.CallType) (media.Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MediaTimeout)
	defer cancel()

	type result struct {
		stream media.Stream
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		st, err := e.devices.GetUserMedia(ctx, media.ConstraintsFor(typ == models.CallVideo))
		ch <- result{st, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("call: acquiring media: %w", r.err)
		}
		return r.stream, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.stream != nil {
				metrics.RecordTracksStopped(media.StopAll(r.stream))
			}
		}()
		return nil, fmt.Errorf("call: acquiring media: %w", ctx.Err())
	}
}

// adopt attaches stream to s, or stops it when s is no longer current.
func (e *Engine) adopt(s *session, stream media.Stream) error {
	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		metrics.RecordTracksStopped(media.StopAll(stream))
		return ErrCallAborted
	}
	s.stream = stream
	e.mu.Unlock()
	return nil
}

func (e *Engine) connect(s *session, stream media.Stream) (peer.Conn, error) {
	conn, err := e.peers.NewPeer(peer.Config{ICEServers: e.cfg.ICEServers})
	if err != nil {
		return nil, &NegotiationError{Op: "peer", Err: err}
	}
	conn.OnICECandidate(func(c peer.ICECandidate) { e.onLocalCandidate(s, c) })
	conn.OnStateChange(func(st peer.State) { e.onPeerState(s, st) })

	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		e.closePeer(conn)
		return nil, ErrCallAborted
	}
	s.conn = conn
	e.mu.Unlock()

	if err := conn.AddStream(stream); err != nil {
		return nil, &NegotiationError{Op: "add_stream", Err: err}
	}
	return conn, nil
}

// applyBuffered marks the remote description applied and flushes
// candidates that arrived before it.
func (e *Engine) applyBuffered(s *session, conn peer.Conn) {
	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return
	}
	s.remoteSet = true
	pending := s.remotePending
	s.remotePending = nil
	e.mu.Unlock()

	for _, c := range pending {
		if err := conn.AddICECandidate(c); err != nil {
			e.log.Warn().Err(err).Str("call_id", s.id).Msg("Adding buffered candidate failed")
		}
	}
}

// markSignaled releases local candidates held back until the offer or
// answer went out.
func (e *Engine) markSignaled(s *session) {
	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return
	}
	s.signaled = true
	pending := s.localPending
	s.localPending = nil
	e.mu.Unlock()

	for _, c := range pending {
		e.sendCandidate(s, c)
	}
}

func (e *Engine) onLocalCandidate(s *session, c peer.ICECandidate) {
	e.mu.Lock()
	if !e.currentLocked(s) {
		e.mu.Unlock()
		return
	}
	if !s.signaled {
		s.localPending = append(s.localPending, c)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.sendCandidate(s, c)
}

func (e *Engine) sendCandidate(s *session, c peer.ICECandidate) {
	raw, err := json.Marshal(c)
	if err != nil {
		e.log.Warn().Err(err).Msg("Encoding candidate failed")
		return
	}
	e.signal(models.EventCallICECandidate, models.CallCandidate{
		CallID:    s.id,
		To:        s.peerID,
		Candidate: raw,
	})
}

func (e *Engine) onPeerState(s *session, st peer.State) {
	switch st {
	case peer.StateConnected:
		e.mu.Lock()
		if !e.currentLocked(s) || (s.state != StateCalling && s.state != StateConnecting) {
			e.mu.Unlock()
			return
		}
		s.connectedAt = e.now()
		e.setStateLocked(s, StateConnected)
		e.mu.Unlock()
		e.log.Info().Str("call_id", s.id).Msg("Call connected")
		e.notify()
	case peer.StateFailed:
		e.log.Warn().Str("call_id", s.id).Msg("Peer connection failed")
		e.fail(s, EndConnectionFailed)
	case peer.StateDisconnected:
		e.log.Debug().Str("call_id", s.id).Msg("Peer connection interrupted")
	}
}

// abort returns to idle after a failure the remote side has not been told
// about. It reports whether s was still current.
func (e *Engine) abort(s *session, reason EndReason) bool {
	e.mu.Lock()
	conn, ok := e.finishLocked(s, reason, false)
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.closePeer(conn)
	e.notify()
	return true
}

// fail ends s locally with a cooldown and tells the peer why.
func (e *Engine) fail(s *session, reason EndReason) bool {
	e.mu.Lock()
	conn, ok := e.finishLocked(s, reason, true)
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.closePeer(conn)

	wire := models.ReasonHangup
	switch reason {
	case EndConnectionFailed:
		wire = models.ReasonConnectionFailed
	case EndNegotiationFailed:
		wire = models.ReasonNegotiation
	}
	e.signal(models.EventCallEnd, models.CallEnd{CallID: s.id, To: s.peerID, Reason: wire})
	e.notify()
	return true
}

// finishLocked releases the media of s and leaves the active state, into
// StateEnded when cooldown is set and straight to idle otherwise. The peer
// connection is returned for the caller to close after unlocking.
func (e *Engine) finishLocked(s *session, reason EndReason, cooldown bool) (peer.Conn, bool) {
	if !e.currentLocked(s) {
		return nil, false
	}
	s.released = true
	if s.cancel != nil {
		s.cancel()
	}
	metrics.RecordTracksStopped(media.StopAll(s.stream))
	metrics.RecordCallEnded(string(reason))
	s.reason = reason
	e.lastEnd = reason

	conn := s.conn
	s.conn = nil
	s.remotePending = nil
	s.localPending = nil

	if cooldown && e.cfg.Cooldown > 0 {
		e.setStateLocked(s, StateEnded)
		e.cooldown = time.AfterFunc(e.cfg.Cooldown, func() { e.expire(s) })
	} else {
		e.recordTransition(s.state, StateIdle)
		e.sess = nil
	}
	return conn, true
}

// expire leaves StateEnded once the cooldown has passed.
func (e *Engine) expire(s *session) {
	e.mu.Lock()
	if e.sess != s || s.state != StateEnded {
		e.mu.Unlock()
		return
	}
	e.recordTransition(StateEnded, StateIdle)
	e.sess = nil
	e.cooldown = nil
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) currentLocked(s *session) bool {
	return e.sess == s && !s.released
}

func (e *Engine) setStateLocked(s *session, to State) {
	e.recordTransition(s.state, to)
	s.state = to
}

func (e *Engine) recordTransition(from, to State) {
	metrics.RecordCallTransition(from.String(), to.String())
	e.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Call state")
}

func (e *Engine) closePeer(conn peer.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		e.log.Debug().Err(err).Msg("Closing peer connection")
	}
}

func (e *Engine) signal(event string, payload any) {
	if err := e.sig.Emit(event, payload); err != nil {
		e.log.Warn().Err(err).Str("event", event).Msg("Signaling failed")
	}
}

// notify delivers the latest snapshot to every listener. A call made while
// a delivery is running is folded into one more round by that delivery.
func (e *Engine) notify() {
	e.notifyMu.Lock()
	e.dirty = true
	if e.delivering {
		e.notifyMu.Unlock()
		return
	}
	e.delivering = true
	for e.dirty {
		e.dirty = false
		e.notifyMu.Unlock()
		e.deliver()
		e.notifyMu.Lock()
	}
	e.delivering = false
	e.notifyMu.Unlock()
}

func (e *Engine) deliver() {
	e.mu.Lock()
	snap := e.snapshotLocked()
	fns := make([]func(Snapshot), len(e.listeners))
	for i, l := range e.listeners {
		fns[i] = l.fn
	}
	e.mu.Unlock()

	for _, fn := range fns {
		e.invoke(fn, snap)
	}
}

func (e *Engine) invoke(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Call listener panicked")
		}
	}()
	fn(snap)
}
