package ringtone

import (
	"log/slog"
	"sync"

	"github.com/harunnryd/telira/pkg/logging"
)

// Player is a platform audio output able to loop one ringtone source.
type Player interface {
	Open(source string) error
	Play() error
	Stop() error
	Close() error
}

// NopPlayer discards every command, for headless runs and tests.
type NopPlayer struct{}

func (NopPlayer) Open(source string) error { return nil }
func (NopPlayer) Play() error              { return nil }
func (NopPlayer) Stop() error              { return nil }
func (NopPlayer) Close() error             { return nil }

// Controller owns the incoming-call tone. Audio output can only be opened
// after some user interaction, so initialization is deferred until the
// first explicit EnsureInitialized and done once for the process.
type Controller struct {
	player Player
	source string
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	playing     bool
}

func NewController(player Player, source string) *Controller {
	return &Controller{
		player: player,
		source: source,
		logger: logging.NewComponentLogger(slog.Default(), "ringtone"),
	}
}

// EnsureInitialized opens the player on first call. A failed attempt is not
// sticky; the next call retries.
func (c *Controller) EnsureInitialized() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.player.Open(c.source); err != nil {
		return err
	}
	c.initialized = true
	c.logger.Info("ringtone_ready", slog.String("source", c.source))
	return nil
}

// Play starts the looping tone. Without a prior successful initialization
// the call degrades to silence; the ring is cosmetic, the call is not.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.playing {
		return
	}
	if err := c.player.Play(); err != nil {
		c.logger.Warn("ringtone_play_failed", slog.String("error", err.Error()))
		return
	}
	c.playing = true
}

// Stop silences the tone. Safe when nothing is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}
	if err := c.player.Stop(); err != nil {
		c.logger.Warn("ringtone_stop_failed", slog.String("error", err.Error()))
	}
	c.playing = false
}

// Teardown releases the audio output.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	if c.playing {
		_ = c.player.Stop()
		c.playing = false
	}
	if err := c.player.Close(); err != nil {
		c.logger.Warn("ringtone_close_failed", slog.String("error", err.Error()))
	}
	c.initialized = false
}
