package frames

import (
	"sync"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindText  Kind = "text"
)

type Frame interface {
	Kind() Kind
	Seq() int64
	Meta() map[string]string
}

// AudioFrame carries one recorder chunk on its way to the caption link.
type AudioFrame struct {
	seq    int64
	data   []byte
	mime   string
	meta   map[string]string
	pooled bool
}

func NewAudioFrame(channel string, seq int64, data []byte, mime string, meta map[string]string) AudioFrame {
	return AudioFrame{
		seq:  seq,
		data: data,
		mime: mime,
		meta: mergeMeta(channel, meta),
	}
}

func NewAudioFrameFromPool(channel string, seq int64, data []byte, mime string, meta map[string]string) AudioFrame {
	buf := AcquireAudioBuf(len(data))
	copy(buf, data)
	return AudioFrame{
		seq:    seq,
		data:   buf,
		mime:   mime,
		meta:   mergeMeta(channel, meta),
		pooled: true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) Seq() int64              { return a.seq }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Data() []byte            { return append([]byte(nil), a.data...) }
func (a AudioFrame) RawPayload() []byte      { return a.data }
func (a AudioFrame) MIME() string            { return a.mime }

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseAudioBuf(af.data)
		return true
	}
	return false
}

// TextFrame carries one partial transcript from the caption link.
type TextFrame struct {
	seq  int64
	text string
	meta map[string]string
}

func NewTextFrame(channel string, seq int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		seq:  seq,
		text: text,
		meta: mergeMeta(channel, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) Seq() int64              { return t.seq }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// SeqGen hands out monotonic sequence numbers per channel.
type SeqGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewSeqGen() *SeqGen {
	return &SeqGen{value: make(map[string]int64)}
}

func (g *SeqGen) Next(channel string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[channel] + 1
	g.value[channel] = v
	return v
}

var audioBufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

func AcquireAudioBuf(size int) []byte {
	b := audioBufPool.Get().([]byte)
	if cap(b) < size {
		return make([]byte, size)
	}
	return b[:size]
}

func ReleaseAudioBuf(b []byte) {
	audioBufPool.Put(b[:0])
}

func mergeMeta(channel string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if channel != "" {
		out[MetaChannel] = channel
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
