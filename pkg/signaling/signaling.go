package signaling

import (
	"context"
	"errors"

	"github.com/harunnryd/telira/pkg/media"
)

// Originator says which side created a session.
type Originator string

const (
	OriginatorLocal  Originator = "local"
	OriginatorRemote Originator = "remote"
)

// EventType enumerates registration and call-lifecycle events delivered by
// the underlying protocol stack.
type EventType string

const (
	EventRegistered         EventType = "registered"
	EventRegistrationFailed EventType = "registration_failed"
	EventNewSession         EventType = "new_session"
	EventProgress           EventType = "progress"
	EventAccepted           EventType = "accepted"
	EventConfirmed          EventType = "confirmed"
	EventFailed             EventType = "failed"
	EventEnded              EventType = "ended"
	EventTerminated         EventType = "terminated"
)

// RemoteParty identifies the far end of a session.
type RemoteParty struct {
	DisplayName string
	User        string
}

// Event is one asynchronous notification from the signaling stack. Events
// are delivered strictly in the order the stack produced them.
type Event struct {
	Type        EventType
	Originator  Originator
	Session     SessionHandle
	RemoteParty RemoteParty
	Err         error
}

// ErrNotSupported is returned by gateways that cannot express an operation
// (e.g. negotiated mute over a REST-only transport).
var ErrNotSupported = errors.New("operation not supported by signaling gateway")

// SessionHandle exposes commands on one negotiated call dialog. Mute and
// hold report the negotiated state, not cached intent.
type SessionHandle interface {
	ID() string
	Answer(ctx context.Context) error
	Terminate(ctx context.Context) error

	Mute(ctx context.Context) error
	Unmute(ctx context.Context) error
	IsMuted() (bool, error)

	Hold(ctx context.Context) error
	Unhold(ctx context.Context) error
	IsOnHold() (bool, error)

	Refer(ctx context.Context, target string, headers []string) error

	// RemoteStream is the inbound audio tap, nil until the first track
	// arrives or when the gateway carries no media.
	RemoteStream() media.Stream
}

// UserAgent wraps an external signaling stack. Implementations own their
// network lifecycle; consumers drain Events until it is closed.
type UserAgent interface {
	Name() string
	Register(ctx context.Context) error
	Call(ctx context.Context, destination, displayName string) (SessionHandle, error)
	Events() <-chan Event
	Stop() error
}
