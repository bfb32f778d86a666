package call

import (
	"time"

	"github.com/harunnryd/telira/pkg/signaling"
)

// Session is the single authoritative record of the current call. It is
// owned exclusively by the Manager; everything the UI sees comes through
// Snapshot.
type Session struct {
	ID             string
	Direction      Direction
	RemoteParty    signaling.RemoteParty
	TransferTarget string

	StartedAt   time.Time
	ConnectedAt time.Time
	EndedAt     time.Time

	handle signaling.SessionHandle
}

func newSession(id string, direction Direction, party signaling.RemoteParty, handle signaling.SessionHandle) *Session {
	return &Session{
		ID:          id,
		Direction:   direction,
		RemoteParty: party,
		StartedAt:   time.Now(),
		handle:      handle,
	}
}

// DurationSeconds is meaningful only once the call reached Active.
func (s *Session) DurationSeconds() int64 {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return int64(end.Sub(s.ConnectedAt).Seconds())
}

// Snapshot is the UI-visible state of the engine.
type Snapshot struct {
	Phase             Phase
	Muted             bool
	OnHold            bool
	DurationSeconds   int64
	RemoteDisplayName string
	IsIncoming        bool
	TransferTarget    string
	Status            string
}
