package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/telira/pkg/frames"
	"github.com/harunnryd/telira/pkg/media"
)

// Track is an in-memory audio track with a stop counter.
type Track struct {
	mu    sync.Mutex
	live  bool
	stops int
}

func NewTrack() *Track { return &Track{live: true} }

func (t *Track) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	t.stops++
}

func (t *Track) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Stream is an in-memory media stream.
type Stream struct {
	id     string
	tracks []media.Track
}

func NewStream(id string, tracks ...media.Track) *Stream {
	if len(tracks) == 0 {
		tracks = []media.Track{NewTrack()}
	}
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string                 { return s.id }
func (s *Stream) AudioTracks() []media.Track { return s.tracks }

// Capture hands out scripted streams, optionally failing to simulate a
// denied microphone permission.
type Capture struct {
	mu       sync.Mutex
	fail     bool
	acquired int
}

func NewCapture() *Capture { return &Capture{} }

func (c *Capture) Fail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *Capture) Acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired
}

func (c *Capture) Acquire(ctx context.Context, deviceID string) (media.Stream, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("microphone permission denied")
	}
	c.acquired++
	return NewStream("mic:" + deviceID), nil
}

// Mixer passes streams through unchanged, counting invocations.
type Mixer struct {
	mu    sync.Mutex
	mixed int
}

func NewMixer() *Mixer { return &Mixer{} }

func (m *Mixer) Mix(s media.Stream) (media.Stream, error) {
	m.mu.Lock()
	m.mixed++
	m.mu.Unlock()
	return s, nil
}

func (m *Mixer) Mixed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mixed
}

// Recorder emits a scripted set of chunks once started.
type Recorder struct {
	channel string
	script  [][]byte

	mu        sync.Mutex
	recording bool
	starts    int
	stops     int
	out       chan frames.AudioFrame
	seq       *frames.SeqGen
}

func NewRecorder(channel string, script ...[]byte) *Recorder {
	return &Recorder{
		channel: channel,
		script:  script,
		out:     make(chan frames.AudioFrame, 16),
		seq:     frames.NewSeqGen(),
	}
}

func (r *Recorder) Start(interval time.Duration) error {
	_ = interval
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return errors.New("already recording")
	}
	r.recording = true
	r.starts++
	script := r.script
	r.mu.Unlock()

	for _, chunk := range script {
		r.out <- frames.NewAudioFrame(r.channel, r.seq.Next(r.channel), chunk, "audio/webm", nil)
	}
	return nil
}

func (r *Recorder) Chunks() <-chan frames.AudioFrame { return r.out }

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	r.recording = false
	r.stops++
	close(r.out)
	return nil
}

func (r *Recorder) StopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

var _ media.Capture = (*Capture)(nil)
var _ media.Mixer = (*Mixer)(nil)
var _ media.Recorder = (*Recorder)(nil)
