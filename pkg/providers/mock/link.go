package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/frames"
)

// Result scripts one transcript emitted by a Link after Start.
type Result struct {
	Text string

	// Source overrides the channel tag on the emitted frame; empty keeps
	// the link's own channel.
	Source string
}

// Link is a scripted caption link. It emits its results once started and
// counts the audio it receives, which is enough to exercise a pipeline
// end to end without a network.
type Link struct {
	channel  captions.Channel
	script   []Result
	startErr error
	sendErr  error

	mu      sync.Mutex
	started int
	closed  int
	sent    [][]byte
	out     chan frames.Frame
	seq     *frames.SeqGen
}

func NewLink(channel captions.Channel, script ...Result) *Link {
	return &Link{
		channel: channel,
		script:  script,
		out:     make(chan frames.Frame, 32),
		seq:     frames.NewSeqGen(),
	}
}

// FailStart makes Start return an error.
func (l *Link) FailStart() { l.startErr = errors.New("link start refused") }

// FailSend makes every SendAudio return an error.
func (l *Link) FailSend() { l.sendErr = errors.New("link send refused") }

func (l *Link) Name() string { return "mock" }

func (l *Link) Start(ctx context.Context) error {
	_ = ctx
	if l.startErr != nil {
		return l.startErr
	}
	l.mu.Lock()
	l.started++
	script := l.script
	l.mu.Unlock()

	channel := string(l.channel)
	for _, r := range script {
		source := r.Source
		if source == "" {
			source = channel
		}
		meta := map[string]string{frames.MetaSource: source}
		l.out <- frames.NewTextFrame(channel, l.seq.Next(channel), r.Text, meta)
	}
	return nil
}

func (l *Link) SendAudio(frame frames.AudioFrame) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, frame.Data())
	return nil
}

func (l *Link) Results() <-chan frames.Frame { return l.out }

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed == 0 {
		close(l.out)
	}
	l.closed++
	return nil
}

func (l *Link) Started() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

func (l *Link) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Sent returns the audio payloads the link received.
func (l *Link) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.sent...)
}

var _ captions.Link = (*Link)(nil)
