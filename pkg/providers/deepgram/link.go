package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/telira/pkg/captions"
	"github.com/harunnryd/telira/pkg/frames"
	"github.com/harunnryd/telira/pkg/logging"
)

// Config controls the Deepgram listen websocket.
type Config struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Language   string
}

// NewLinkFactory returns a factory building one live link per channel. Each
// link tags its stream with extra=source:<channel> so results can be routed
// back to the channel that produced the audio.
func NewLinkFactory(cfg Config) captions.LinkFactory {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	return func(channel captions.Channel) (captions.Link, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("deepgram api key is not configured")
		}
		return &Link{
			cfg:     cfg,
			channel: channel,
			logger:  logging.NewComponentLogger(slog.Default(), "deepgram_"+string(channel)),
			out:     make(chan frames.Frame, 64),
			audio:   make(chan []byte, 32),
			done:    make(chan struct{}),
			seq:     frames.NewSeqGen(),
		}, nil
	}
}

// Link is one live transcription connection over a raw websocket.
type Link struct {
	cfg     Config
	channel captions.Channel
	logger  *slog.Logger

	conn  *websocket.Conn
	out   chan frames.Frame
	audio chan []byte
	done  chan struct{}
	seq   *frames.SeqGen
	wg    sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (l *Link) Name() string { return "deepgram" }

func (l *Link) Start(ctx context.Context) error {
	wsURL, err := buildListenURL(l.cfg, string(l.channel))
	if err != nil {
		return err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+l.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to deepgram websocket: %w", err)
	}
	l.conn = conn

	l.wg.Add(2)
	go l.readLoop()
	go l.writeLoop()
	go func() {
		l.wg.Wait()
		close(l.out)
		close(l.done)
		_ = conn.Close()
	}()

	l.logger.Info("link_connected", slog.String("model", l.cfg.Model))
	return nil
}

// SendAudio queues one chunk for the write loop. The payload is copied so
// pooled frame buffers can be released by the caller.
func (l *Link) SendAudio(frame frames.AudioFrame) error {
	payload := frame.RawPayload()
	if len(payload) == 0 {
		return nil
	}

	l.sendMu.RLock()
	closed := l.sendClosed
	l.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), payload...)
	select {
	case l.audio <- copied:
		return nil
	case <-l.done:
		if err := l.lastErr(); err != nil {
			return err
		}
		return errors.New("link closed")
	}
}

func (l *Link) Results() <-chan frames.Frame { return l.out }

// Close drains the send side, tells the backend the stream is over, and
// waits for the loops to finish.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeSend()
		if l.conn == nil {
			// Never started; nothing is draining the channels.
			close(l.out)
			close(l.done)
		}
	})
	<-l.done
	return l.lastErr()
}

func (l *Link) closeSend() {
	l.closeSendOnce.Do(func() {
		l.sendMu.Lock()
		l.sendClosed = true
		close(l.audio)
		l.sendMu.Unlock()
	})
}

func (l *Link) lastErr() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Link) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *Link) writeLoop() {
	defer l.wg.Done()

	for chunk := range l.audio {
		if err := l.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			l.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := l.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		l.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	// Unblock the write loop once the read side dies.
	defer l.closeSend()

	channel := string(l.channel)
	for {
		_, payload, err := l.conn.ReadMessage()
		if err != nil {
			l.setErr(fmt.Errorf("failed to read transcription event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			l.setErr(errors.New(message))
			return
		}

		text := response.transcript()
		if text == "" {
			continue
		}

		l.emit(frames.NewTextFrame(channel, l.seq.Next(channel), text, response.meta()))
	}
}

func (l *Link) emit(frame frames.TextFrame) {
	select {
	case l.out <- frame:
	case <-l.done:
	default:
		l.logger.Warn("result_dropped", slog.Int64("seq", frame.Seq()))
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
			Words      []struct {
				Speaker *int `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`

	Metadata struct {
		Extra struct {
			Source string `json:"source"`
		} `json:"extra"`
	} `json:"metadata"`
}

func (r listenResponse) transcript() string {
	if len(r.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Channel.Alternatives[0].Transcript)
}

// meta carries the backend's own channel tag; pipelines use it to discard
// results that were produced for the other channel.
func (r listenResponse) meta() map[string]string {
	meta := map[string]string{
		frames.MetaIsFinal: strconv.FormatBool(r.IsFinal || r.SpeechFinal),
	}
	if r.Metadata.Extra.Source != "" {
		meta[frames.MetaSource] = r.Metadata.Extra.Source
	}
	if len(r.Channel.Alternatives) > 0 {
		words := r.Channel.Alternatives[0].Words
		if len(words) > 0 && words[0].Speaker != nil {
			meta[frames.MetaSpeaker] = strconv.Itoa(*words[0].Speaker)
		}
	}
	return meta
}

func buildListenURL(cfg Config, channel string) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram api base url: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("punctuate", "true")
	query.Set("interim_results", "true")
	query.Set("smart_format", "true")
	query.Set("utterances", "true")
	query.Set("multichannel", "true")
	query.Set("diarize", "true")
	query.Set("extra", "source:"+channel)
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
