package call

import (
	"context"
	"testing"
	"time"

	"github.com/harunnryd/telira/pkg/errorsx"
	"github.com/harunnryd/telira/pkg/media"
	mediamock "github.com/harunnryd/telira/pkg/media/mock"
	"github.com/harunnryd/telira/pkg/signaling"
	sigmock "github.com/harunnryd/telira/pkg/signaling/mock"
)

type fakePipeline struct {
	name   string
	order  *[]string
	starts int
	stops  int
	err    error
}

func (p *fakePipeline) Start(ctx context.Context, stream media.Stream, isCaller bool) error {
	p.starts++
	if p.order != nil {
		*p.order = append(*p.order, p.name+".start")
	}
	return p.err
}

func (p *fakePipeline) Stop() {
	p.stops++
	if p.order != nil {
		*p.order = append(*p.order, p.name+".stop")
	}
}

type fakeRinger struct {
	inits int
	plays int
	stops int
}

func (r *fakeRinger) EnsureInitialized() error { r.inits++; return nil }
func (r *fakeRinger) Play()                    { r.plays++ }
func (r *fakeRinger) Stop()                    { r.stops++ }

type fakeHistory struct {
	appended []string
	released []string
}

func (h *fakeHistory) Append(direction, number, displayName string, startedAt time.Time) string {
	h.appended = append(h.appended, direction+":"+number)
	return "hist-1"
}

func (h *fakeHistory) Release(id string, releasedAt time.Time, durationSeconds int64) {
	h.released = append(h.released, id)
}

type fakeFinalizer struct {
	order    *[]string
	sessions []string
}

func (f *fakeFinalizer) Finalize(ctx context.Context, sessionID string) error {
	f.sessions = append(f.sessions, sessionID)
	if f.order != nil {
		*f.order = append(*f.order, "finalize")
	}
	return nil
}

type managerFixture struct {
	m         *Manager
	ua        *sigmock.UserAgent
	capture   *mediamock.Capture
	local     *fakePipeline
	remote    *fakePipeline
	ringer    *fakeRinger
	history   *fakeHistory
	finalizer *fakeFinalizer
	order     []string
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	fx := &managerFixture{
		ua:        sigmock.NewUserAgent(),
		capture:   mediamock.NewCapture(),
		ringer:    &fakeRinger{},
		history:   &fakeHistory{},
		finalizer: &fakeFinalizer{},
	}
	fx.local = &fakePipeline{name: "local", order: &fx.order}
	fx.remote = &fakePipeline{name: "remote", order: &fx.order}
	fx.finalizer.order = &fx.order
	fx.m = NewManager(
		Config{Microphone: "default"},
		fx.ua,
		media.NewExclusiveCapture(fx.capture),
		fx.local,
		fx.remote,
		fx.ringer,
		fx.history,
		fx.finalizer,
	)
	return fx
}

func (fx *managerFixture) register(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := fx.m.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := fx.m.HandleEvent(ctx, signaling.Event{Type: signaling.EventRegistered}); err != nil {
		t.Fatalf("registered event: %v", err)
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected Registered, got %s", fx.m.Phase())
	}
}

func (fx *managerFixture) ring(t *testing.T, sess *sigmock.Session) {
	t.Helper()
	err := fx.m.HandleEvent(context.Background(), signaling.Event{
		Type:        signaling.EventNewSession,
		Originator:  signaling.OriginatorRemote,
		Session:     sess,
		RemoteParty: signaling.RemoteParty{User: "1002", DisplayName: "Bob"},
	})
	if err != nil {
		t.Fatalf("new session event: %v", err)
	}
}

func TestAnswerActivatesOnce(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-in-1")
	sess.SetRemoteStream(mediamock.NewStream("remote-stream", mediamock.NewTrack()))
	fx.ring(t, sess)

	if fx.m.Phase() != PhaseIncoming {
		t.Fatalf("expected Incoming, got %s", fx.m.Phase())
	}
	if fx.ringer.plays != 1 {
		t.Fatalf("expected ringtone to play once, got %d", fx.ringer.plays)
	}

	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if fx.m.Phase() != PhaseActive {
		t.Fatalf("expected Active, got %s", fx.m.Phase())
	}
	if sess.Answered() != 1 {
		t.Fatalf("expected one answer on the handle, got %d", sess.Answered())
	}
	if fx.ringer.stops == 0 {
		t.Fatal("expected ringtone stopped on answer")
	}
	if fx.local.starts != 1 || fx.remote.starts != 1 {
		t.Fatalf("expected both pipelines started once, got local=%d remote=%d", fx.local.starts, fx.remote.starts)
	}

	// A late confirmed event must not restart anything.
	if err := fx.m.HandleEvent(context.Background(), signaling.Event{Type: signaling.EventConfirmed}); err != nil {
		t.Fatalf("confirmed event: %v", err)
	}
	if fx.local.starts != 1 {
		t.Fatalf("confirmed after Active restarted pipeline, starts=%d", fx.local.starts)
	}
}

func TestOutboundAcceptedActivatesOnce(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-out-1")
	sess.SetRemoteStream(mediamock.NewStream("remote-stream", mediamock.NewTrack()))
	fx.ua.SetNextSession(sess)

	if err := fx.m.PlaceCall(context.Background(), "1003", "Carol"); err != nil {
		t.Fatalf("place call: %v", err)
	}
	if fx.m.Phase() != PhaseOutgoing {
		t.Fatalf("expected Outgoing, got %s", fx.m.Phase())
	}

	ctx := context.Background()
	if err := fx.m.HandleEvent(ctx, signaling.Event{Type: signaling.EventAccepted}); err != nil {
		t.Fatalf("accepted event: %v", err)
	}
	if err := fx.m.HandleEvent(ctx, signaling.Event{Type: signaling.EventConfirmed}); err != nil {
		t.Fatalf("confirmed event: %v", err)
	}
	if fx.m.Phase() != PhaseActive {
		t.Fatalf("expected Active, got %s", fx.m.Phase())
	}
	if fx.local.starts != 1 || fx.remote.starts != 1 {
		t.Fatalf("expected single pipeline start, got local=%d remote=%d", fx.local.starts, fx.remote.starts)
	}
}

func TestOverlappingSessionRejected(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	first := sigmock.NewSession("sess-first")
	fx.ring(t, first)
	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}

	second := sigmock.NewSession("sess-second")
	err := fx.m.HandleEvent(context.Background(), signaling.Event{
		Type:       signaling.EventNewSession,
		Originator: signaling.OriginatorRemote,
		Session:    second,
	})
	if err == nil {
		t.Fatal("expected overlapping session to be rejected")
	}
	if !errorsx.HasReason(err, errorsx.ReasonOverlappingSession) {
		t.Fatalf("expected overlapping-session reason, got %v", err)
	}
	if second.Terminated() != 1 {
		t.Fatalf("expected rejected session terminated, got %d", second.Terminated())
	}
	if first.Terminated() != 0 {
		t.Fatal("current session must survive the rejection")
	}
	if fx.m.Phase() != PhaseActive {
		t.Fatalf("expected Active preserved, got %s", fx.m.Phase())
	}
}

func TestToggleMuteFollowsReportedState(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-mute")
	fx.ring(t, sess)
	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if err := fx.m.ToggleMute(context.Background()); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if mute, unmute := sess.MuteCalls(); mute != 1 || unmute != 0 {
		t.Fatalf("expected mute once, got mute=%d unmute=%d", mute, unmute)
	}

	if err := fx.m.ToggleMute(context.Background()); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if mute, unmute := sess.MuteCalls(); mute != 1 || unmute != 1 {
		t.Fatalf("expected round trip, got mute=%d unmute=%d", mute, unmute)
	}

	// A stack that rewrote the state out-of-band drives the next toggle.
	sess.SetReportedMute(true)
	if err := fx.m.ToggleMute(context.Background()); err != nil {
		t.Fatalf("third toggle: %v", err)
	}
	if _, unmute := sess.MuteCalls(); unmute != 2 {
		t.Fatalf("expected reported state to force unmute, got unmute=%d", unmute)
	}
}

func TestHangupTeardownOrder(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-teardown")
	fx.ring(t, sess)
	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}
	fx.order = fx.order[:0]

	if err := fx.m.Hangup(context.Background()); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	want := []string{"local.stop", "remote.stop", "finalize"}
	if len(fx.order) != len(want) {
		t.Fatalf("teardown order %v, want %v", fx.order, want)
	}
	for i := range want {
		if fx.order[i] != want[i] {
			t.Fatalf("teardown order %v, want %v", fx.order, want)
		}
	}
	if len(fx.finalizer.sessions) != 1 || fx.finalizer.sessions[0] != "sess-teardown" {
		t.Fatalf("expected transcript finalized for the session, got %v", fx.finalizer.sessions)
	}
	if len(fx.history.released) != 1 {
		t.Fatalf("expected history entry released, got %v", fx.history.released)
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected Registered after teardown, got %s", fx.m.Phase())
	}
	if sess.Terminated() != 1 {
		t.Fatalf("expected handle terminated once, got %d", sess.Terminated())
	}

	// The slot is free for the next call.
	next := sigmock.NewSession("sess-next")
	fx.ring(t, next)
	if fx.m.Phase() != PhaseIncoming {
		t.Fatalf("expected new session adopted, got %s", fx.m.Phase())
	}
}

func TestMicrophoneFailureAbortsCall(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)
	fx.capture.Fail(true)

	sess := sigmock.NewSession("sess-nomic")
	fx.ring(t, sess)
	if err := fx.m.Answer(context.Background()); err == nil {
		t.Fatal("expected answer to fail without a microphone")
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected return to Registered, got %s", fx.m.Phase())
	}
	if sess.Terminated() != 1 {
		t.Fatalf("expected leg terminated, got %d", sess.Terminated())
	}
	if fx.local.starts != 0 {
		t.Fatal("pipeline must not start without a stream")
	}
}

func TestTransferTerminatesLocalLeg(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-xfer")
	fx.ring(t, sess)
	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if err := fx.m.Transfer(context.Background(), "sip:ops@example.com"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := sess.ReferTargets(); len(got) != 1 || got[0] != "sip:ops@example.com" {
		t.Fatalf("unexpected refer targets %v", got)
	}
	if sess.Terminated() != 1 {
		t.Fatalf("expected local leg terminated after refer, got %d", sess.Terminated())
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected Registered after transfer, got %s", fx.m.Phase())
	}
	if len(fx.finalizer.sessions) != 1 {
		t.Fatalf("expected transcript flush on transfer, got %v", fx.finalizer.sessions)
	}
}

func TestRejectedReferKeepsCallActive(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-xfer-reject")
	sess.RejectRefer()
	fx.ring(t, sess)
	if err := fx.m.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}

	err := fx.m.Transfer(context.Background(), "sip:ops@example.com")
	if err == nil {
		t.Fatal("expected transfer error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonSignalingRefer) {
		t.Fatalf("expected refer reason, got %v", err)
	}
	if fx.m.Phase() != PhaseActive {
		t.Fatalf("expected call to stay Active, got %s", fx.m.Phase())
	}
	if sess.Terminated() != 0 {
		t.Fatal("rejected refer must not hang up the call")
	}
	snap := fx.m.Snapshot()
	if snap.TransferTarget != "" {
		t.Fatalf("expected transfer target cleared, got %q", snap.TransferTarget)
	}
}

func TestRejectStopsRingtone(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-declined")
	fx.ring(t, sess)
	if fx.ringer.plays != 1 {
		t.Fatalf("expected ringtone playing, plays=%d", fx.ringer.plays)
	}

	ctx := context.Background()
	if err := fx.m.Reject(ctx); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected Registered after reject, got %s", fx.m.Phase())
	}
	if fx.ringer.stops != 1 {
		t.Fatalf("expected ringtone stopped after reject, stops=%d", fx.ringer.stops)
	}
	if sess.Terminated() != 1 {
		t.Fatal("expected rejected leg terminated")
	}
}

func TestHangupBeforeAnswerStopsRingtone(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-abandoned")
	fx.ring(t, sess)

	ctx := context.Background()
	if err := fx.m.Hangup(ctx); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if fx.ringer.stops != 1 {
		t.Fatalf("expected ringtone stopped after hangup, stops=%d", fx.ringer.stops)
	}
	if len(fx.finalizer.sessions) != 0 {
		t.Fatalf("nothing to persist for an unanswered call, got %v", fx.finalizer.sessions)
	}
}

func TestFailedBeforeAnswerDiscardsSession(t *testing.T) {
	fx := newManagerFixture(t)
	fx.register(t)

	sess := sigmock.NewSession("sess-missed")
	fx.ring(t, sess)

	ctx := context.Background()
	if err := fx.m.HandleEvent(ctx, signaling.Event{Type: signaling.EventFailed}); err != nil {
		t.Fatalf("failed event: %v", err)
	}
	if fx.m.Phase() != PhaseRegistered {
		t.Fatalf("expected Registered after missed call, got %s", fx.m.Phase())
	}
	if fx.ringer.stops == 0 {
		t.Fatal("expected ringtone stopped on failure")
	}
	if len(fx.finalizer.sessions) != 0 {
		t.Fatalf("nothing to persist for an unanswered call, got %v", fx.finalizer.sessions)
	}
	if len(fx.history.released) != 1 {
		t.Fatal("expected history entry closed out")
	}
}
