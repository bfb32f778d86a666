package captions

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/telira/pkg/errorsx"
	"github.com/harunnryd/telira/pkg/frames"
	"github.com/harunnryd/telira/pkg/logging"
	"github.com/harunnryd/telira/pkg/media"
	"github.com/harunnryd/telira/pkg/transcript"
)

// DefaultChunkInterval matches the recorder cadence the transcription
// backend is tuned for.
const DefaultChunkInterval = 100 * time.Millisecond

// PipelineConfig wires one channel of the caption pipeline.
type PipelineConfig struct {
	Channel       Channel
	ChunkInterval time.Duration
	Mixer         media.Mixer
	Recorders     media.RecorderFactory
	NewLink       LinkFactory
	Sink          *transcript.Aggregator

	// Live receives each labeled partial as it arrives, for display.
	Live func(line string)

	// Gate is polled per chunk; false drops the chunk instead of sending.
	Gate func() bool
}

// Pipeline moves one stream through mixer, recorder, and caption link, and
// funnels the resulting partials into the transcript sink. It is reused
// across calls: Start adopts a stream, Stop releases everything.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	isCaller bool
	lastText string
	stream   media.Stream
	recorder media.Recorder
	link     Link
	seq      *frames.SeqGen
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "captions_"+string(cfg.Channel)),
		seq:    frames.NewSeqGen(),
	}
}

// Start opens the caption link and begins recording the stream. The link is
// opened first so no chunk is produced without a destination.
func (p *Pipeline) Start(ctx context.Context, stream media.Stream, isCaller bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.stopLocked()
	}

	link, err := p.cfg.NewLink(p.cfg.Channel)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonCaptionConnect)
	}
	if err := link.Start(ctx); err != nil {
		_ = link.Close()
		return errorsx.Wrap(err, errorsx.ReasonCaptionConnect)
	}

	mixed, err := p.cfg.Mixer.Mix(stream)
	if err != nil {
		_ = link.Close()
		return err
	}
	recorder := p.cfg.Recorders(mixed, string(p.cfg.Channel))

	p.running = true
	p.isCaller = isCaller
	p.lastText = ""
	p.stream = stream
	p.recorder = recorder
	p.link = link

	if err := recorder.Start(p.cfg.ChunkInterval); err != nil {
		p.stopLocked()
		return err
	}

	go p.sendLoop(recorder.Chunks(), link)
	go p.recvLoop(link, isCaller)

	p.logger.Info("pipeline_started",
		slog.String("stream_id", stream.ID()),
		slog.String("link", link.Name()))
	return nil
}

// Stop tears the pipeline down. Safe to call at any time, including before
// the first Start and repeatedly.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Pipeline) stopLocked() {
	if !p.running {
		return
	}
	p.running = false

	if p.recorder != nil && p.recorder.Recording() {
		if err := p.recorder.Stop(); err != nil {
			p.logger.Warn("recorder_stop_failed", slog.String("error", err.Error()))
		}
	}
	if p.link != nil {
		if err := p.link.Close(); err != nil {
			p.logger.Warn("link_close_failed", slog.String("error", err.Error()))
		}
	}
	media.ReleaseStream(p.stream)

	p.recorder = nil
	p.link = nil
	p.stream = nil
	p.logger.Info("pipeline_stopped")
}

// sendLoop forwards recorder chunks to the link. A closed gate or a send
// failure drops the chunk; nothing is buffered for retry.
func (p *Pipeline) sendLoop(chunks <-chan frames.AudioFrame, link Link) {
	for frame := range chunks {
		if p.cfg.Gate != nil && !p.cfg.Gate() {
			frames.ReleaseAudioFrame(frame)
			continue
		}
		if err := link.SendAudio(frame); err != nil {
			p.logger.Warn("audio_send_dropped",
				slog.Int64("seq", frame.Seq()),
				slog.String("error", err.Error()))
		}
		frames.ReleaseAudioFrame(frame)
	}
}

func (p *Pipeline) recvLoop(link Link, isCaller bool) {
	channel := string(p.cfg.Channel)
	for frame := range link.Results() {
		tf, ok := frame.(frames.TextFrame)
		if !ok {
			continue
		}
		meta := tf.Meta()
		if src := meta[frames.MetaSource]; src != "" && src != channel {
			// Backend echoed a result tagged for the other channel.
			p.logger.Debug("cross_channel_result_discarded",
				slog.String("tagged_source", src))
			continue
		}

		text := strings.TrimSpace(tf.Text())
		if text == "" {
			continue
		}
		if p.skipRepeat(text) {
			continue
		}

		partial := transcript.Partial{
			Channel: channel,
			Speaker: SpeakerLabel(p.cfg.Channel, isCaller),
			Text:    text,
			Seq:     p.seq.Next(channel),
		}
		p.cfg.Sink.Add(partial)
		if p.cfg.Live != nil {
			p.cfg.Live(partial.Labeled())
		}
	}
}

// skipRepeat debounces identical consecutive partials, which interim
// results produce in bursts.
func (p *Pipeline) skipRepeat(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.lastText {
		return true
	}
	p.lastText = text
	return false
}
