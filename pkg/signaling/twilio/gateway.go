package twilio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/telira/pkg/logging"
	"github.com/harunnryd/telira/pkg/media"
	"github.com/harunnryd/telira/pkg/signaling"
)

// Config controls the Twilio REST gateway and its webhook server.
type Config struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	ServerAddr string `mapstructure:"server_addr"`
	PublicURL  string `mapstructure:"public_url"`
	VoicePath  string `mapstructure:"voice_path"`
	StatusPath string `mapstructure:"status_path"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/status"
	}
	return c
}

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

type restClient interface {
	callCreator
	callUpdater
}

// Gateway drives calls over the Twilio REST API. Registration means the
// webhook server is up and the credentials are present; there is no
// long-lived signaling connection to keep alive.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
	client restClient

	events chan signaling.Event
	server *http.Server

	mu       sync.Mutex
	sessions map[string]*session

	draining atomic.Bool
	stopOnce sync.Once
}

func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:      cfg.withDefaults(),
		logger:   logging.NewComponentLogger(slog.Default(), "twilio_gateway"),
		events:   make(chan signaling.Event, 64),
		sessions: make(map[string]*session),
	}
}

func (g *Gateway) Name() string { return "twilio" }

func (g *Gateway) Events() <-chan signaling.Event { return g.events }

// Register validates credentials and starts the webhook server, then
// reports the gateway as registered.
func (g *Gateway) Register(ctx context.Context) error {
	if g.cfg.AccountSID == "" || g.cfg.AuthToken == "" {
		return errors.New("missing twilio credentials")
	}
	if g.cfg.FromNumber == "" {
		return errors.New("missing twilio from number")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.VoicePath, g.handleVoice)
	mux.HandleFunc(g.cfg.StatusPath, g.handleStatusCallback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	g.server = &http.Server{
		Addr:              g.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = g.server.Close()
	}()
	go func() {
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("webhook_server_error", slog.String("error", err.Error()))
		}
	}()

	g.emit(signaling.Event{Type: signaling.EventRegistered, Originator: signaling.OriginatorLocal})
	g.logger.Info("gateway_registered",
		slog.String("voice_webhook", g.voiceWebhookURL()),
		slog.String("status_callback", g.statusCallbackURL()))
	return nil
}

func (g *Gateway) Call(ctx context.Context, destination, displayName string) (signaling.SessionHandle, error) {
	_ = ctx
	if destination == "" {
		return nil, errors.New("destination required")
	}

	params := &api.CreateCallParams{}
	params.SetTo(destination)
	params.SetFrom(g.cfg.FromNumber)
	params.SetUrl(g.voiceWebhookURL())
	params.SetStatusCallback(g.statusCallbackURL())
	params.SetStatusCallbackEvent([]string{"ringing", "answered", "completed"})

	resp, err := g.restAPI().CreateCall(params)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Sid == nil {
		return nil, errors.New("missing call sid")
	}

	sess := g.adoptSession(*resp.Sid, signaling.RemoteParty{User: destination, DisplayName: displayName})
	g.logger.Info("call_created", slog.String("call_sid", *resp.Sid))
	return sess, nil
}

func (g *Gateway) Stop() error {
	g.stopOnce.Do(func() {
		g.draining.Store(true)
		if g.server != nil {
			_ = g.server.Close()
		}
		g.mu.Lock()
		g.sessions = make(map[string]*session)
		g.mu.Unlock()
		close(g.events)
	})
	return nil
}

func (g *Gateway) restAPI() restClient {
	if g.client != nil {
		return g.client
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: g.cfg.AccountSID,
		Password: g.cfg.AuthToken,
	})
	return rest.Api
}

func (g *Gateway) adoptSession(sid string, party signaling.RemoteParty) *session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.sessions[sid]; ok {
		return existing
	}
	sess := &session{gateway: g, sid: sid, party: party}
	g.sessions[sid] = sess
	return sess
}

func (g *Gateway) dropSession(sid string) {
	g.mu.Lock()
	delete(g.sessions, sid)
	g.mu.Unlock()
}

// handleVoice answers Twilio's voice webhook. The call is parked with a
// long pause; audio rides the phone leg, not this process.
func (g *Gateway) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.cfg.AuthToken != "" && !g.validateRequest(r) {
		g.logger.Warn("invalid_webhook_signature", slog.String("path", r.URL.Path))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	callSID := r.FormValue("CallSid")
	direction := r.FormValue("Direction")
	if callSID != "" && strings.HasPrefix(direction, "inbound") {
		party := signaling.RemoteParty{
			User:        r.FormValue("From"),
			DisplayName: r.FormValue("CallerName"),
		}
		sess := g.adoptSession(callSID, party)
		g.emit(signaling.Event{
			Type:        signaling.EventNewSession,
			Originator:  signaling.OriginatorRemote,
			Session:     sess,
			RemoteParty: party,
		})
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(`<Response><Pause length="3600"/></Response>`))
}

func (g *Gateway) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if g.cfg.AuthToken != "" && !g.validateRequest(r) {
		g.logger.Warn("invalid_webhook_signature", slog.String("path", r.URL.Path))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	callSID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	if callSID == "" || status == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	g.mu.Lock()
	sess := g.sessions[callSID]
	g.mu.Unlock()

	ev, terminal := mapCallStatus(status)
	if ev == "" || sess == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if terminal {
		g.dropSession(callSID)
	}
	g.emit(signaling.Event{Type: ev, Originator: signaling.OriginatorRemote, Session: sess, RemoteParty: sess.party})
	w.WriteHeader(http.StatusOK)
}

// mapCallStatus translates Twilio call progress into lifecycle events.
func mapCallStatus(status string) (signaling.EventType, bool) {
	switch strings.ToLower(status) {
	case "ringing":
		return signaling.EventProgress, false
	case "in-progress", "answered":
		return signaling.EventConfirmed, false
	case "completed":
		return signaling.EventEnded, true
	case "busy", "failed", "no-answer", "canceled":
		return signaling.EventFailed, true
	default:
		return "", false
	}
}

func (g *Gateway) emit(ev signaling.Event) {
	if g.draining.Load() {
		return
	}
	select {
	case g.events <- ev:
	default:
		g.logger.Warn("event_dropped", slog.String("event", string(ev.Type)))
	}
}

func (g *Gateway) validateRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(g.cfg.AuthToken)
	return validator.ValidateBody(g.requestURL(r), body, signature)
}

func (g *Gateway) requestURL(r *http.Request) string {
	if g.cfg.PublicURL != "" {
		return strings.TrimRight(g.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (g *Gateway) voiceWebhookURL() string {
	return g.baseURL() + g.cfg.VoicePath
}

func (g *Gateway) statusCallbackURL() string {
	return g.baseURL() + g.cfg.StatusPath
}

func (g *Gateway) baseURL() string {
	if g.cfg.PublicURL != "" {
		url := strings.TrimRight(g.cfg.PublicURL, "/")
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}
		return url
	}
	addr := g.cfg.ServerAddr
	if addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// session is one Twilio call leg. Media never reaches this process, so
// mute, hold, and transfer cannot be expressed over the REST surface.
type session struct {
	gateway *Gateway
	sid     string
	party   signaling.RemoteParty
}

func (s *session) ID() string { return s.sid }

// Answer is a no-op: the voice webhook already produced the TwiML that
// accepted the call.
func (s *session) Answer(ctx context.Context) error {
	_ = ctx
	return nil
}

func (s *session) Terminate(ctx context.Context) error {
	_ = ctx
	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	_, err := s.gateway.restAPI().UpdateCall(s.sid, params)
	if err != nil {
		return err
	}
	s.gateway.dropSession(s.sid)
	return nil
}

func (s *session) Mute(ctx context.Context) error   { _ = ctx; return signaling.ErrNotSupported }
func (s *session) Unmute(ctx context.Context) error { _ = ctx; return signaling.ErrNotSupported }
func (s *session) IsMuted() (bool, error)           { return false, nil }

func (s *session) Hold(ctx context.Context) error   { _ = ctx; return signaling.ErrNotSupported }
func (s *session) Unhold(ctx context.Context) error { _ = ctx; return signaling.ErrNotSupported }
func (s *session) IsOnHold() (bool, error)          { return false, nil }

func (s *session) Refer(ctx context.Context, target string, headers []string) error {
	_ = ctx
	_ = target
	_ = headers
	return signaling.ErrNotSupported
}

func (s *session) RemoteStream() media.Stream { return nil }

var _ signaling.UserAgent = (*Gateway)(nil)
var _ signaling.SessionHandle = (*session)(nil)
