package telira

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/telira/pkg/call"
	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/media"
	mediamock "github.com/harunnryd/telira/pkg/media/mock"
	provmock "github.com/harunnryd/telira/pkg/providers/mock"
	"github.com/harunnryd/telira/pkg/signaling"
	sigmock "github.com/harunnryd/telira/pkg/signaling/mock"
	"github.com/harunnryd/telira/pkg/transcript"
)

type silentPlayer struct{}

func (silentPlayer) Open(string) error { return nil }
func (silentPlayer) Play() error       { return nil }
func (silentPlayer) Stop() error       { return nil }
func (silentPlayer) Close() error      { return nil }

// longSessionID is wide enough to carve a correlation id from.
const longSessionID = "web-1a2b3c4d-5e6f-7a8b-9c0d-1e2f3a4b5c6d-000000000000ab"

func testConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Signaling: SignalingConfig{Provider: "mock"},
		Captions:  CaptionsConfig{Provider: "mock", ChunkIntervalMS: 10},
		Transcript: TranscriptConfig{
			SimilarityThreshold: 0.7,
			CorrelationIDLength: 53,
		},
		Media:    MediaConfig{Microphone: "default"},
		Ringtone: RingtoneConfig{Source: "ring.mp3"},
		History:  HistoryConfig{Limit: 10},
	}
}

func newTestEngine(t *testing.T, ua *sigmock.UserAgent, store transcript.Store) *Engine {
	t.Helper()

	registry := NewRegistry()
	registry.RegisterUserAgent("mock", func(cfg Config) (signaling.UserAgent, error) {
		return ua, nil
	})
	registry.RegisterLink("mock", func(cfg Config) (captions.LinkFactory, error) {
		return func(channel captions.Channel) (captions.Link, error) {
			return provmock.NewLink(channel,
				provmock.Result{Text: "hello from " + string(channel)},
			), nil
		}, nil
	})

	engine, err := NewEngine(EngineOptions{
		Config:    testConfig(),
		Providers: registry,
		Capture:   mediamock.NewCapture(),
		Mixer:     mediamock.NewMixer(),
		Recorders: func(stream media.Stream, channel string) media.Recorder {
			return mediamock.NewRecorder(channel, []byte("chunk"))
		},
		Player: silentPlayer{},
		Store:  store,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func waitForPhase(t *testing.T, engine *Engine, want call.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Snapshot().Phase == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("phase %s not reached, at %s", want, engine.Snapshot().Phase)
}

func TestEngineInboundCallLifecycle(t *testing.T) {
	ua := sigmock.NewUserAgent()
	store := transcript.NewMemoryStore()
	engine := newTestEngine(t, ua, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = engine.Run(ctx) }()

	if err := engine.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	ua.Push(signaling.Event{Type: signaling.EventRegistered})
	waitForPhase(t, engine, call.PhaseRegistered)

	sess := sigmock.NewSession(longSessionID)
	sess.SetRemoteStream(mediamock.NewStream("remote", mediamock.NewTrack()))
	ua.Push(signaling.Event{
		Type:        signaling.EventNewSession,
		Originator:  signaling.OriginatorRemote,
		Session:     sess,
		RemoteParty: signaling.RemoteParty{User: "1002", DisplayName: "Bob"},
	})
	waitForPhase(t, engine, call.PhaseIncoming)

	snap := engine.Snapshot()
	if !snap.IsIncoming || snap.RemoteDisplayName != "Bob" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	if err := engine.Answer(ctx); err != nil {
		t.Fatalf("answer: %v", err)
	}
	waitForPhase(t, engine, call.PhaseActive)

	// Both channels produce one caption line each.
	gotLines := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(gotLines) < 2 {
		select {
		case line := <-engine.Captions():
			gotLines[line] = true
		case <-timeout:
			t.Fatalf("captions incomplete: %v", gotLines)
		}
	}

	if err := engine.Hangup(ctx); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	waitForPhase(t, engine, call.PhaseRegistered)

	correlationID := longSessionID[:53]
	artifact, ok := store.Get(correlationID)
	if !ok {
		t.Fatal("expected transcript artifact stored")
	}
	if artifact.SessionID != longSessionID {
		t.Fatalf("artifact session id %q", artifact.SessionID)
	}
	if len(artifact.Lines) == 0 {
		t.Fatal("expected transcript lines")
	}
	for _, line := range artifact.Lines {
		if !strings.Contains(line, ": ") {
			t.Fatalf("line %q is not speaker labeled", line)
		}
	}

	entries := engine.History()
	if len(entries) != 1 || entries[0].Number != "1002" {
		t.Fatalf("unexpected history %+v", entries)
	}
	if entries[0].ReleasedAt.IsZero() {
		t.Fatal("expected history entry released")
	}

	if err := engine.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestEngineRejectsUnknownProviders(t *testing.T) {
	registry := NewRegistry()
	cfg := testConfig()

	_, err := NewEngine(EngineOptions{
		Config:    cfg,
		Providers: registry,
		Capture:   mediamock.NewCapture(),
		Mixer:     mediamock.NewMixer(),
		Recorders: func(stream media.Stream, channel string) media.Recorder {
			return mediamock.NewRecorder(channel)
		},
		Player: silentPlayer{},
	})
	if err == nil {
		t.Fatal("expected unknown provider error")
	}
}
