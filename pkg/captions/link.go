package captions

import (
	"context"

	"github.com/harunnryd/telira/pkg/frames"
)

// Link is one live connection to a transcription backend. A link serves a
// single channel for the lifetime of one call; Results is closed when the
// link shuts down.
type Link interface {
	Name() string
	Start(ctx context.Context) error
	SendAudio(frame frames.AudioFrame) error
	Results() <-chan frames.Frame
	Close() error
}

// LinkFactory builds a fresh link for one channel. Pipelines call it on
// every call start so connection state never leaks across calls.
type LinkFactory func(channel Channel) (Link, error)
