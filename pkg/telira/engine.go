package telira

import (
	"context"
	"log/slog"
	"time"

	"github.com/harunnryd/telira/pkg/call"
	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/history"
	"github.com/harunnryd/telira/pkg/logging"
	"github.com/harunnryd/telira/pkg/media"
	"github.com/harunnryd/telira/pkg/ringtone"
	"github.com/harunnryd/telira/pkg/signaling"
	"github.com/harunnryd/telira/pkg/transcript"
)

// EngineOptions carries the platform collaborators the engine cannot build
// itself: media capture, recorders, and the ringtone output.
type EngineOptions struct {
	Config    Config
	Providers *Registry

	Capture   media.Capture
	Mixer     media.Mixer
	Recorders media.RecorderFactory
	Player    ringtone.Player

	// Store overrides the transcript store; nil builds one from the
	// config (HTTP when store_url is set, in-memory otherwise).
	Store transcript.Store
}

// Engine assembles the call manager, the two caption pipelines, and the
// transcript machinery behind one facade.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	manager    *call.Manager
	ua         signaling.UserAgent
	aggregator *transcript.Aggregator
	history    *history.Log
	ringer     *ringtone.Controller

	captionsCh chan string
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config

	ua, err := opts.Providers.BuildUserAgent(cfg.Signaling.Provider, cfg)
	if err != nil {
		return nil, err
	}
	linkFactory, err := opts.Providers.BuildLinkFactory(cfg.Captions.Provider, cfg)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		if cfg.Transcript.StoreURL != "" {
			store = transcript.NewHTTPStore(cfg.Transcript.StoreURL)
		} else {
			store = transcript.NewMemoryStore()
		}
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(slog.Default(), "engine"),
		ua:         ua,
		aggregator: transcript.NewAggregator(),
		history:    history.NewLog(cfg.History.Limit),
		ringer:     ringtone.NewController(opts.Player, cfg.Ringtone.Source),
		captionsCh: make(chan string, 128),
	}

	finalizer := transcript.NewFinalizer(transcript.FinalizerConfig{
		CorrelationIDLength: cfg.Transcript.CorrelationIDLength,
		SimilarityThreshold: cfg.Transcript.SimilarityThreshold,
	}, e.aggregator, store)

	// Chunks produced outside the Active phase are dropped, not buffered.
	gate := func() bool { return e.manager.Phase() == call.PhaseActive }

	interval := time.Duration(cfg.Captions.ChunkIntervalMS) * time.Millisecond
	local := captions.NewPipeline(captions.PipelineConfig{
		Channel:       captions.ChannelLocal,
		ChunkInterval: interval,
		Mixer:         opts.Mixer,
		Recorders:     opts.Recorders,
		NewLink:       linkFactory,
		Sink:          e.aggregator,
		Live:          e.pushCaption,
		Gate:          gate,
	})
	remote := captions.NewPipeline(captions.PipelineConfig{
		Channel:       captions.ChannelRemote,
		ChunkInterval: interval,
		Mixer:         opts.Mixer,
		Recorders:     opts.Recorders,
		NewLink:       linkFactory,
		Sink:          e.aggregator,
		Live:          e.pushCaption,
		Gate:          gate,
	})

	e.manager = call.NewManager(
		call.Config{Microphone: cfg.Media.Microphone},
		ua,
		media.NewExclusiveCapture(opts.Capture),
		local,
		remote,
		e.ringer,
		e.history,
		finalizer,
	)
	return e, nil
}

// Run drains signaling events until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine_running",
		slog.String("signaling", e.cfg.Signaling.Provider),
		slog.String("captions", e.cfg.Captions.Provider))
	return e.manager.Run(ctx)
}

func (e *Engine) Register(ctx context.Context) error { return e.manager.Register(ctx) }

func (e *Engine) PlaceCall(ctx context.Context, destination, displayName string) error {
	return e.manager.PlaceCall(ctx, destination, displayName)
}

func (e *Engine) Answer(ctx context.Context) error     { return e.manager.Answer(ctx) }
func (e *Engine) Reject(ctx context.Context) error     { return e.manager.Reject(ctx) }
func (e *Engine) Hangup(ctx context.Context) error     { return e.manager.Hangup(ctx) }
func (e *Engine) ToggleMute(ctx context.Context) error { return e.manager.ToggleMute(ctx) }
func (e *Engine) ToggleHold(ctx context.Context) error { return e.manager.ToggleHold(ctx) }

func (e *Engine) Transfer(ctx context.Context, target string) error {
	return e.manager.Transfer(ctx, target)
}

func (e *Engine) CancelTransfer() error { return e.manager.CancelTransfer() }

func (e *Engine) Snapshot() call.Snapshot { return e.manager.Snapshot() }

func (e *Engine) History() []history.Entry { return e.history.Entries() }

// Captions delivers labeled live caption lines. Slow consumers lose lines
// rather than stalling the pipeline.
func (e *Engine) Captions() <-chan string { return e.captionsCh }

func (e *Engine) pushCaption(line string) {
	select {
	case e.captionsCh <- line:
	default:
	}
}

// Drain ends any current call and shuts the signaling stack down.
func (e *Engine) Drain(ctx context.Context) error {
	if err := e.manager.Hangup(ctx); err != nil {
		e.logger.Debug("drain_hangup_skipped", slog.String("error", err.Error()))
	}
	e.ringer.Teardown()
	return e.ua.Stop()
}
