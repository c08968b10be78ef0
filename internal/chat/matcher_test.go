// SpaceZone Realtime - Chat and Call Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/spacezone-realtime

package chat

import (
	"testing"
	"time"

	"github.com/tomtom215/spacezone-realtime/internal/models"
)

func TestDefaultMatcher(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	temp := func(id, serverID, content string, at time.Time) *models.Message {
		return &models.Message{ID: id, ServerID: serverID, SenderID: "alice", Content: content, Type: models.MessageText, CreatedAt: at}
	}

	tests := []struct {
		name         string
		msg          models.Message
		pending      []*models.Message
		wantIndex    int
		wantStrategy string
	}{
		{
			name:         "acknowledged id",
			msg:          models.Message{ID: "m2", SenderID: "alice", Content: "edited by server", CreatedAt: base},
			pending:      []*models.Message{temp("temp_1", "m1", "a", base), temp("temp_2", "m2", "b", base)},
			wantIndex:    1,
			wantStrategy: "ack_id",
		},
		{
			name:         "client id",
			msg:          models.Message{ID: "m5", ClientID: "temp_2", SenderID: "alice", Content: "b", CreatedAt: base},
			pending:      []*models.Message{temp("temp_1", "", "b", base), temp("temp_2", "", "b", base)},
			wantIndex:    1,
			wantStrategy: "client_id",
		},
		{
			name:         "heuristic picks the oldest",
			msg:          models.Message{ID: "m3", SenderID: "alice", Content: "ok", Type: models.MessageText, CreatedAt: base.Add(2 * time.Second)},
			pending:      []*models.Message{temp("temp_1", "", "ok", base), temp("temp_2", "", "ok", base.Add(time.Second))},
			wantIndex:    0,
			wantStrategy: "heuristic",
		},
		{
			name:      "outside the window",
			msg:       models.Message{ID: "m3", SenderID: "alice", Content: "ok", CreatedAt: base.Add(time.Minute)},
			pending:   []*models.Message{temp("temp_1", "", "ok", base)},
			wantIndex: -1,
		},
		{
			name:      "different content",
			msg:       models.Message{ID: "m3", SenderID: "alice", Content: "ok!", CreatedAt: base},
			pending:   []*models.Message{temp("temp_1", "", "ok", base)},
			wantIndex: -1,
		},
		{
			name:      "different type",
			msg:       models.Message{ID: "m3", SenderID: "alice", Content: "ok", Type: models.MessageShare, CreatedAt: base},
			pending:   []*models.Message{temp("temp_1", "", "ok", base)},
			wantIndex: -1,
		},
		{
			name:         "acknowledged elsewhere is skipped",
			msg:          models.Message{ID: "m9", SenderID: "alice", Content: "ok", CreatedAt: base},
			pending:      []*models.Message{temp("temp_1", "m1", "ok", base), temp("temp_2", "", "ok", base)},
			wantIndex:    1,
			wantStrategy: "heuristic",
		},
		{
			name:      "nothing pending",
			msg:       models.Message{ID: "m1", SenderID: "alice", Content: "ok", CreatedAt: base},
			wantIndex: -1,
		},
	}

	m := DefaultMatcher(10 * time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, strategy := m.Match(&tt.msg, tt.pending)
			if i != tt.wantIndex || strategy != tt.wantStrategy {
				t.Errorf("Match = (%d, %q), want (%d, %q)", i, strategy, tt.wantIndex, tt.wantStrategy)
			}
		})
	}
}
