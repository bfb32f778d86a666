package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/harunnryd/telira/pkg/errorsx"
	"github.com/harunnryd/telira/pkg/logging"
)

// FinalizerConfig tunes artifact creation.
type FinalizerConfig struct {
	// CorrelationIDLength is the fixed width of the structured correlation
	// identifier carved from the front of the session id. Sessions with
	// shorter ids are not persisted.
	CorrelationIDLength int
	SimilarityThreshold float64
}

const DefaultCorrelationIDLength = 53

// Finalizer turns the aggregator's buffer into one artifact per session and
// submits it exactly once when the call terminates.
type Finalizer struct {
	cfg    FinalizerConfig
	agg    *Aggregator
	store  Store
	logger *slog.Logger

	mu        sync.Mutex
	submitted map[string]bool
}

func NewFinalizer(cfg FinalizerConfig, agg *Aggregator, store Store) *Finalizer {
	if cfg.CorrelationIDLength <= 0 {
		cfg.CorrelationIDLength = DefaultCorrelationIDLength
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Finalizer{
		cfg:       cfg,
		agg:       agg,
		store:     store,
		logger:    logging.NewComponentLogger(slog.Default(), "transcript_finalizer"),
		submitted: make(map[string]bool),
	}
}

// Finalize drains the aggregator, collapses redundant partials, and submits
// the artifact. The buffer is drained even when nothing is persisted so the
// next session starts clean.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) error {
	partials := f.agg.Drain()

	if len(sessionID) < f.cfg.CorrelationIDLength {
		f.logger.Info("transcript_skipped",
			slog.String("session_id", sessionID),
			slog.String("reason", "correlation_id_too_short"))
		return nil
	}
	correlationID := sessionID[:f.cfg.CorrelationIDLength]

	survivors := Collapse(partials, f.cfg.SimilarityThreshold)
	if len(survivors) == 0 {
		f.logger.Info("transcript_skipped",
			slog.String("session_id", sessionID),
			slog.String("reason", "empty_after_dedup"))
		return nil
	}

	f.mu.Lock()
	if f.submitted[sessionID] {
		f.mu.Unlock()
		return nil
	}
	f.submitted[sessionID] = true
	f.mu.Unlock()

	lines := make([]string, len(survivors))
	for i, p := range survivors {
		lines[i] = p.Labeled()
	}

	artifact := Artifact{
		SessionID:     sessionID,
		CorrelationID: correlationID,
		Lines:         lines,
	}
	if err := f.store.StoreTranscript(ctx, artifact); err != nil {
		if errors.Is(err, ErrDuplicate) {
			f.logger.Info("transcript_store_duplicate",
				slog.String("correlation_id", correlationID))
			return nil
		}
		f.logger.Error("transcript_store_failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()))
		return errorsx.Wrap(err, errorsx.ReasonTranscriptStore)
	}

	f.logger.Info("transcript_stored",
		slog.String("correlation_id", correlationID),
		slog.Int("lines", len(lines)))
	return nil
}
