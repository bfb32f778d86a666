package media

import (
	"context"
	"time"

	"github.com/harunnryd/telira/pkg/frames"
)

// Track is a single audio track within a stream.
type Track interface {
	Live() bool
	Stop()
}

// Stream is a platform media stream tapped by a caption pipeline.
type Stream interface {
	ID() string
	AudioTracks() []Track
}

// ReleaseStream stops every track that is still live.
func ReleaseStream(s Stream) {
	if s == nil {
		return
	}
	for _, track := range s.AudioTracks() {
		if track.Live() {
			track.Stop()
		}
	}
}

// Capture acquires the local microphone. Acquisition can be denied by the
// platform; callers treat that as fatal to the current call attempt only.
type Capture interface {
	Acquire(ctx context.Context, deviceID string) (Stream, error)
}

// Mixer normalizes an arbitrary stream into a single recordable stream.
type Mixer interface {
	Mix(Stream) (Stream, error)
}

// Recorder emits fixed-interval binary chunks from one stream.
type Recorder interface {
	Start(interval time.Duration) error
	Chunks() <-chan frames.AudioFrame
	Recording() bool
	Stop() error
}

// RecorderFactory builds a recorder over a mixed stream for one channel.
type RecorderFactory func(stream Stream, channel string) Recorder
