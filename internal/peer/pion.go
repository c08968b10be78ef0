// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/tomtom215/spacezone-realtime/internal/media"
)

// PionFactory creates pion/webrtc peer connections.
type PionFactory struct{}

// NewPionFactory returns the default factory.
func NewPionFactory() *PionFactory {
	return &PionFactory{}
}

// NewPeer implements Factory.
func (f *PionFactory) NewPeer(cfg Config) (Conn, error) {
	pcfg := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		pcfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(pcfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &pionConn{pc: pc}, nil
}

type pionConn struct {
	pc        *webrtc.PeerConnection
	closeOnce sync.Once
	closeErr  error
}

func (c *pionConn) AddStream(s media.Stream) error {
	for _, t := range s.Tracks() {
		pt, ok := t.(media.PionTrack)
		if !ok {
			return fmt.Errorf("track %s cannot be sent over a pion connection", t.ID())
		}
		if _, err := c.pc.AddTrack(pt.Local()); err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
	}
	return nil
}

func (c *pionConn) CreateOffer(ctx context.Context) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPion(offer), ctx.Err()
}

func (c *pionConn) CreateAnswer(ctx context.Context) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPion(answer), ctx.Err()
}

func (c *pionConn) SetLocalDescription(d SessionDescription) error {
	sd, err := toPion(d)
	if err != nil {
		return err
	}
	return c.pc.SetLocalDescription(sd)
}

func (c *pionConn) SetRemoteDescription(d SessionDescription) error {
	sd, err := toPion(d)
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDescription, err)
	}
	return nil
}

func (c *pionConn) AddICECandidate(ic ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        ic.Candidate,
		SDPMid:           ic.SDPMid,
		SDPMLineIndex:    ic.SDPMLineIndex,
		UsernameFragment: ic.UsernameFragment,
	})
}

func (c *pionConn) OnICECandidate(fn func(ICECandidate)) {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		fn(ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (c *pionConn) OnStateChange(fn func(State)) {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(stateFromPion(s))
	})
}

func (c *pionConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.pc.Close() })
	return c.closeErr
}

func fromPion(d webrtc.SessionDescription) SessionDescription {
	return SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func toPion(d SessionDescription) (webrtc.SessionDescription, error) {
	t := webrtc.NewSDPType(d.Type)
	if t == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q", ErrMalformedDescription, d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func stateFromPion(s webrtc.PeerConnectionState) State {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateNew
	}
}
