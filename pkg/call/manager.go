package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/telira/pkg/errorsx"
	"github.com/harunnryd/telira/pkg/logging"
	"github.com/harunnryd/telira/pkg/media"
	"github.com/harunnryd/telira/pkg/signaling"
)

// CaptionPipeline is one channel of the capture/streaming pipeline. Start
// failures are captioning failures only and never affect the call.
type CaptionPipeline interface {
	Start(ctx context.Context, stream media.Stream, isCaller bool) error
	Stop()
}

// Ringer plays the incoming-call tone. It is a process-wide resource
// initialized lazily on the first user action.
type Ringer interface {
	EnsureInitialized() error
	Play()
	Stop()
}

// HistoryRecorder appends call history entries.
type HistoryRecorder interface {
	Append(direction, number, displayName string, startedAt time.Time) string
	Release(id string, releasedAt time.Time, durationSeconds int64)
}

// Finalizer persists the call transcript on termination.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID string) error
}

// ErrNoSession is returned by session commands issued outside a call.
var ErrNoSession = errors.New("no current call session")

// Config carries manager tunables.
type Config struct {
	Microphone string
}

// Manager is the sole authority for the call phase. It consumes adapter
// events and user commands, both serialized on one mutex, and drives the
// pipelines, ringtone, history, and transcript side effects.
type Manager struct {
	cfg       Config
	ua        signaling.UserAgent
	capture   *media.ExclusiveCapture
	local     CaptionPipeline
	remote    CaptionPipeline
	ringer    Ringer
	history   HistoryRecorder
	finalizer Finalizer
	logger    *slog.Logger
	fsm       *stateMachine

	mu        sync.Mutex
	session   *Session
	historyID string
	status    string
}

func NewManager(
	cfg Config,
	ua signaling.UserAgent,
	capture *media.ExclusiveCapture,
	local CaptionPipeline,
	remote CaptionPipeline,
	ringer Ringer,
	history HistoryRecorder,
	finalizer Finalizer,
) *Manager {
	return &Manager{
		cfg:       cfg,
		ua:        ua,
		capture:   capture,
		local:     local,
		remote:    remote,
		ringer:    ringer,
		history:   history,
		finalizer: finalizer,
		logger:    logging.NewComponentLogger(slog.Default(), "call_manager"),
		fsm:       newStateMachine(),
	}
}

// Phase returns the current call phase.
func (m *Manager) Phase() Phase { return m.fsm.Phase() }

// AddPhaseListener registers an observer for phase changes. Listeners must
// not call back into the manager synchronously.
func (m *Manager) AddPhaseListener(l PhaseListener) { m.fsm.AddListener(l) }

// Run drains adapter events until the context ends or the agent closes.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-m.ua.Events():
			if !ok {
				return nil
			}
			if err := m.HandleEvent(ctx, ev); err != nil {
				m.logger.Warn("event_rejected",
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Register starts registration with the signaling stack.
func (m *Manager) Register(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Transition(PhaseRegistering, "register requested"); err != nil {
		return err
	}
	if err := m.ua.Register(ctx); err != nil {
		_ = m.fsm.Transition(PhaseIdle, "register send failed")
		m.status = "registration failed"
		return errorsx.Wrap(err, errorsx.ReasonSignalingRegister)
	}
	return nil
}

// PlaceCall dials an outbound call. The session is created only after the
// stack accepts the dial request.
func (m *Manager) PlaceCall(ctx context.Context, destination, displayName string) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return errors.New("destination required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return errorsx.New("call already in progress", errorsx.ReasonOverlappingSession)
	}
	if m.fsm.Phase() != PhaseRegistered {
		return &InvalidTransitionError{From: m.fsm.Phase(), To: PhaseOutgoing}
	}

	handle, err := m.ua.Call(ctx, destination, displayName)
	if err != nil {
		m.status = "call failed"
		return errorsx.Wrap(err, errorsx.ReasonSignalingCall)
	}
	if err := m.fsm.Transition(PhaseOutgoing, "dialing"); err != nil {
		_ = handle.Terminate(ctx)
		return err
	}

	id := handle.ID()
	if id == "" {
		id = uuid.NewString()
	}
	m.session = newSession(id, DirectionOutbound, signaling.RemoteParty{User: destination, DisplayName: displayName}, handle)
	m.historyID = m.history.Append(string(DirectionOutbound), destination, displayName, m.session.StartedAt)
	m.status = ""
	m.logger.Info("call_dialing", slog.String("destination", destination), slog.String("session_id", id))
	return nil
}

// Answer accepts the ringing inbound call and activates it.
func (m *Manager) Answer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	if m.fsm.Phase() != PhaseIncoming {
		return &InvalidTransitionError{From: m.fsm.Phase(), To: PhaseActive}
	}
	if err := m.session.handle.Answer(ctx); err != nil {
		m.status = "answer failed"
		return errorsx.Wrap(err, errorsx.ReasonSignalingAnswer)
	}
	return m.activateLocked(ctx, "answered")
}

// Reject declines the ringing inbound call.
func (m *Manager) Reject(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	if m.fsm.Phase() != PhaseIncoming {
		return &InvalidTransitionError{From: m.fsm.Phase(), To: PhaseRegistered}
	}
	_ = m.session.handle.Terminate(ctx)
	m.discardLocked("call rejected")
	return nil
}

// Hangup ends the current call from any in-call phase.
func (m *Manager) Hangup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	switch m.fsm.Phase() {
	case PhaseActive, PhaseTransferring:
		_ = m.session.handle.Terminate(ctx)
		m.endCallLocked(ctx, "local hangup")
		return nil
	case PhaseIncoming, PhaseOutgoing:
		_ = m.session.handle.Terminate(ctx)
		m.discardLocked("call canceled before answer")
		return nil
	default:
		return &InvalidTransitionError{From: m.fsm.Phase(), To: PhaseTerminating}
	}
}

// ToggleMute flips mute based on the adapter-reported state, never a cached
// flag, so intent cannot drift from negotiated reality.
func (m *Manager) ToggleMute(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	reported, err := m.session.handle.IsMuted()
	if err != nil {
		m.status = "mute state unavailable"
		return err
	}
	if reported {
		return m.session.handle.Unmute(ctx)
	}
	return m.session.handle.Mute(ctx)
}

// ToggleHold follows the same reported-state discipline as ToggleMute.
func (m *Manager) ToggleHold(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSession
	}
	reported, err := m.session.handle.IsOnHold()
	if err != nil {
		m.status = "hold state unavailable"
		return err
	}
	if reported {
		return m.session.handle.Unhold(ctx)
	}
	return m.session.handle.Hold(ctx)
}

// Transfer refers the active call to target; on acceptance the local leg is
// terminated. A rejected refer leaves the call Active.
func (m *Manager) Transfer(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("transfer target required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		m.status = "no call to transfer"
		return ErrNoSession
	}
	if err := m.fsm.Transition(PhaseTransferring, "transfer requested"); err != nil {
		return err
	}
	m.session.TransferTarget = target

	if err := m.session.handle.Refer(ctx, target, nil); err != nil {
		m.session.TransferTarget = ""
		_ = m.fsm.Transition(PhaseActive, "refer rejected")
		m.status = "transfer failed"
		return errorsx.Wrap(err, errorsx.ReasonSignalingRefer)
	}

	m.logger.Info("transfer_accepted", slog.String("target", target))
	_ = m.session.handle.Terminate(ctx)
	m.endCallLocked(ctx, "transferred")
	return nil
}

// CancelTransfer abandons the Transferring sub-state; pipelines are not
// touched.
func (m *Manager) CancelTransfer() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fsm.Phase() != PhaseTransferring {
		return &InvalidTransitionError{From: m.fsm.Phase(), To: PhaseActive}
	}
	if m.session != nil {
		m.session.TransferTarget = ""
	}
	return m.fsm.Transition(PhaseActive, "transfer canceled")
}

// HandleEvent applies one adapter event. Events arrive in delivery order;
// Run feeds them here, and tests may call it directly.
func (m *Manager) HandleEvent(ctx context.Context, ev signaling.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case signaling.EventRegistered:
		if err := m.fsm.Transition(PhaseRegistered, "registration confirmed"); err != nil {
			return err
		}
		if err := m.ringer.EnsureInitialized(); err != nil {
			m.logger.Warn("ringtone_init_failed", slog.String("error", err.Error()))
		}
		m.status = ""
		return nil

	case signaling.EventRegistrationFailed:
		m.status = "registration failed"
		return m.fsm.Transition(PhaseIdle, "registration failed")

	case signaling.EventNewSession:
		if ev.Originator != signaling.OriginatorRemote {
			// Local sessions are created by PlaceCall; the echo event
			// carries nothing new.
			return nil
		}
		return m.adoptInboundLocked(ctx, ev)

	case signaling.EventProgress:
		return nil

	case signaling.EventAccepted, signaling.EventConfirmed:
		if m.session == nil {
			return nil
		}
		switch m.fsm.Phase() {
		case PhaseOutgoing:
			return m.activateLocked(ctx, "call accepted")
		default:
			// Accepted after Active (e.g. confirmed following accepted)
			// carries no transition.
			return nil
		}

	case signaling.EventFailed:
		return m.handleFailureLocked(ctx, ev)

	case signaling.EventEnded, signaling.EventTerminated:
		if m.session == nil {
			return nil
		}
		switch m.fsm.Phase() {
		case PhaseActive, PhaseTransferring:
			m.endCallLocked(ctx, "remote ended")
			return nil
		case PhaseIncoming, PhaseOutgoing:
			m.discardLocked("call ended before answer")
			return nil
		default:
			return nil
		}

	default:
		m.logger.Debug("event_ignored", slog.String("event", string(ev.Type)))
		return nil
	}
}

// Snapshot returns the UI-visible state. Mute and hold are read from the
// adapter so the view never reflects stale local intent.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Phase:  m.fsm.Phase(),
		Status: m.status,
	}
	if m.session == nil {
		return snap
	}
	snap.DurationSeconds = m.session.DurationSeconds()
	snap.RemoteDisplayName = m.session.RemoteParty.DisplayName
	snap.IsIncoming = snap.Phase == PhaseIncoming
	snap.TransferTarget = m.session.TransferTarget
	if muted, err := m.session.handle.IsMuted(); err == nil {
		snap.Muted = muted
	}
	if onHold, err := m.session.handle.IsOnHold(); err == nil {
		snap.OnHold = onHold
	}
	return snap
}

func (m *Manager) adoptInboundLocked(ctx context.Context, ev signaling.Event) error {
	if m.session != nil {
		// A prior session still owns the pipelines; adopting would leak
		// them. Reject the newcomer outright.
		if ev.Session != nil {
			_ = ev.Session.Terminate(ctx)
		}
		m.status = "busy: overlapping session rejected"
		m.logger.Warn("overlapping_session_rejected",
			slog.String("current_session", m.session.ID))
		return errorsx.New("session already active", errorsx.ReasonOverlappingSession)
	}
	if err := m.fsm.Transition(PhaseIncoming, "remote session"); err != nil {
		if ev.Session != nil {
			_ = ev.Session.Terminate(ctx)
		}
		return err
	}

	id := ""
	if ev.Session != nil {
		id = ev.Session.ID()
	}
	if id == "" {
		id = uuid.NewString()
	}
	m.session = newSession(id, DirectionInbound, ev.RemoteParty, ev.Session)
	m.historyID = m.history.Append(string(DirectionInbound), ev.RemoteParty.User, ev.RemoteParty.DisplayName, m.session.StartedAt)
	m.status = ""
	m.ringer.Play()
	m.logger.Info("call_ringing",
		slog.String("session_id", id),
		slog.String("from", ev.RemoteParty.User))
	return nil
}

// activateLocked moves the session to Active and brings up both caption
// pipelines. Microphone denial aborts the attempt; caption-link trouble
// does not.
func (m *Manager) activateLocked(ctx context.Context, reason string) error {
	m.ringer.Stop()
	if err := m.fsm.Transition(PhaseActive, reason); err != nil {
		return err
	}
	m.session.ConnectedAt = time.Now()

	mic, err := m.capture.Acquire(ctx, m.cfg.Microphone)
	if err != nil {
		m.status = "microphone unavailable"
		m.logger.Error("media_acquire_failed", slog.String("error", err.Error()))
		_ = m.session.handle.Terminate(ctx)
		m.endCallLocked(ctx, "media acquisition failed")
		return err
	}

	isCaller := m.session.Direction == DirectionOutbound
	if err := m.local.Start(ctx, mic, isCaller); err != nil {
		m.logger.Warn("caption_pipeline_degraded",
			slog.String("channel", "local"),
			slog.String("error", err.Error()))
	}
	if remoteStream := m.session.handle.RemoteStream(); remoteStream != nil {
		if err := m.remote.Start(ctx, remoteStream, isCaller); err != nil {
			m.logger.Warn("caption_pipeline_degraded",
				slog.String("channel", "remote"),
				slog.String("error", err.Error()))
		}
	} else {
		m.logger.Warn("caption_pipeline_degraded",
			slog.String("channel", "remote"),
			slog.String("error", "no remote stream"))
	}

	m.logger.Info("call_active", slog.String("session_id", m.session.ID))
	return nil
}

func (m *Manager) handleFailureLocked(ctx context.Context, ev signaling.Event) error {
	if m.session == nil {
		if ev.Err != nil {
			m.status = "call failed"
		}
		return nil
	}
	switch m.fsm.Phase() {
	case PhaseIncoming, PhaseOutgoing:
		m.status = "call failed"
		m.discardLocked("call failed before answer")
		return nil
	case PhaseActive, PhaseTransferring:
		m.status = "call failed"
		m.endCallLocked(ctx, "call failed")
		return nil
	default:
		return nil
	}
}

// endCallLocked tears the session down in the mandated order: pipelines
// first, then the transcript flush, then the session slot. Only after that
// may a new session be adopted.
func (m *Manager) endCallLocked(ctx context.Context, reason string) {
	if err := m.fsm.Transition(PhaseTerminating, reason); err != nil {
		m.logger.Warn("terminate_transition_failed", slog.String("error", err.Error()))
	}
	m.session.EndedAt = time.Now()

	m.local.Stop()
	m.remote.Stop()
	m.capture.ReleaseCurrent()

	if err := m.finalizer.Finalize(ctx, m.session.ID); err != nil {
		m.logger.Error("transcript_finalize_failed", slog.String("error", err.Error()))
	}
	m.history.Release(m.historyID, m.session.EndedAt, m.session.DurationSeconds())

	m.logger.Info("call_ended",
		slog.String("session_id", m.session.ID),
		slog.Int64("duration_seconds", m.session.DurationSeconds()),
		slog.String("reason", reason))

	m.session = nil
	m.historyID = ""
	_ = m.fsm.Transition(PhaseRegistered, "cleanup complete")
}

// discardLocked drops a session that never reached Active. The ringtone and
// pipelines are stopped; nothing is persisted.
func (m *Manager) discardLocked(reason string) {
	m.ringer.Stop()
	m.local.Stop()
	m.remote.Stop()
	m.capture.ReleaseCurrent()
	m.history.Release(m.historyID, time.Now(), 0)

	m.logger.Info("call_discarded",
		slog.String("session_id", m.session.ID),
		slog.String("reason", reason))

	m.session = nil
	m.historyID = ""
	_ = m.fsm.Transition(PhaseRegistered, reason)
}
