package mock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/telira/pkg/media"
	"github.com/harunnryd/telira/pkg/signaling"
)

// UserAgent is an in-memory signaling stack for tests. Events are delivered
// through Push in the exact order the test supplies them.
type UserAgent struct {
	events chan signaling.Event
	closed atomic.Bool

	mu            sync.Mutex
	registerErr   error
	callErr       error
	registrations int
	dialed        []string
	nextSession   *Session
}

func NewUserAgent() *UserAgent {
	return &UserAgent{events: make(chan signaling.Event, 64)}
}

func (u *UserAgent) Name() string { return "mock" }

func (u *UserAgent) Register(ctx context.Context) error {
	_ = ctx
	u.mu.Lock()
	defer u.mu.Unlock()
	u.registrations++
	return u.registerErr
}

func (u *UserAgent) Call(ctx context.Context, destination, displayName string) (signaling.SessionHandle, error) {
	_ = ctx
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.callErr != nil {
		return nil, u.callErr
	}
	u.dialed = append(u.dialed, destination)
	session := u.nextSession
	if session == nil {
		session = NewSession("mock-session-" + destination)
	}
	return session, nil
}

func (u *UserAgent) Events() <-chan signaling.Event { return u.events }

func (u *UserAgent) Stop() error {
	if u.closed.CompareAndSwap(false, true) {
		close(u.events)
	}
	return nil
}

// Push injects an event as if the stack produced it.
func (u *UserAgent) Push(ev signaling.Event) {
	if u.closed.Load() {
		return
	}
	u.events <- ev
}

func (u *UserAgent) FailRegister(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.registerErr = err
}

func (u *UserAgent) FailCall(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.callErr = err
}

func (u *UserAgent) SetNextSession(s *Session) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nextSession = s
}

func (u *UserAgent) Registrations() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.registrations
}

func (u *UserAgent) Dialed() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.dialed...)
}

// Session is a scripted session handle with call counters.
type Session struct {
	id string

	mu           sync.Mutex
	answered     int
	terminated   int
	muted        bool
	onHold       bool
	muteCalls    int
	unmuteCalls  int
	holdCalls    int
	unholdCalls  int
	referTargets []string
	referErr     error
	answerErr    error
	remote       media.Stream
}

func NewSession(id string) *Session {
	return &Session{id: id}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Answer(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answerErr != nil {
		return s.answerErr
	}
	s.answered++
	return nil
}

func (s *Session) Terminate(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated++
	return nil
}

func (s *Session) Mute(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muteCalls++
	s.muted = true
	return nil
}

func (s *Session) Unmute(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmuteCalls++
	s.muted = false
	return nil
}

func (s *Session) IsMuted() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted, nil
}

func (s *Session) Hold(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdCalls++
	s.onHold = true
	return nil
}

func (s *Session) Unhold(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unholdCalls++
	s.onHold = false
	return nil
}

func (s *Session) IsOnHold() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHold, nil
}

func (s *Session) Refer(ctx context.Context, target string, headers []string) error {
	_ = ctx
	_ = headers
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.referErr != nil {
		return s.referErr
	}
	s.referTargets = append(s.referTargets, target)
	return nil
}

func (s *Session) RemoteStream() media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *Session) SetRemoteStream(stream media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = stream
}

func (s *Session) RejectRefer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referErr = errors.New("refer rejected")
}

func (s *Session) FailAnswer(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerErr = err
}

// SetReportedMute overrides the negotiated mute state without a command, as
// if the far side renegotiated it.
func (s *Session) SetReportedMute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Session) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered
}

func (s *Session) Terminated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *Session) MuteCalls() (mute, unmute int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muteCalls, s.unmuteCalls
}

func (s *Session) HoldCalls() (hold, unhold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdCalls, s.unholdCalls
}

func (s *Session) ReferTargets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.referTargets...)
}

var _ signaling.UserAgent = (*UserAgent)(nil)
var _ signaling.SessionHandle = (*Session)(nil)
