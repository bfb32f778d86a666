package transcript

import (
	"strings"
	"sync"
)

// Partial is one interim transcript emitted by a caption pipeline.
type Partial struct {
	Channel string
	Speaker string
	Text    string
	Seq     int64
}

// Labeled renders the partial as a display line.
func (p Partial) Labeled() string {
	if p.Speaker == "" {
		return p.Text
	}
	return p.Speaker + ": " + p.Text
}

// Aggregator buffers partials from both pipelines in arrival order. Both
// producers call Add from their own goroutines; the mutex is the only
// synchronization the merge needs.
type Aggregator struct {
	mu       sync.Mutex
	partials []Partial
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

func (a *Aggregator) Add(p Partial) {
	p.Text = strings.TrimSpace(p.Text)
	if p.Text == "" {
		return
	}
	a.mu.Lock()
	a.partials = append(a.partials, p)
	a.mu.Unlock()
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.partials)
}

// Drain returns the buffered partials in arrival order and clears the buffer.
func (a *Aggregator) Drain() []Partial {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.partials
	a.partials = nil
	return out
}

// Collapse runs the dedup pass over the raw texts and returns the surviving
// partials in order. Labels play no part in the comparison.
func Collapse(partials []Partial, threshold float64) []Partial {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if len(partials) <= 1 {
		return append([]Partial(nil), partials...)
	}
	texts := make([]string, len(partials))
	for i, p := range partials {
		texts[i] = p.Text
	}
	removed := markRedundant(texts, threshold)

	out := make([]Partial, 0, len(partials))
	seen := make(map[string]struct{}, len(partials))
	for i, p := range partials {
		if removed[i] {
			continue
		}
		if _, dup := seen[p.Text]; dup {
			continue
		}
		seen[p.Text] = struct{}{}
		out = append(out, p)
	}
	return out
}
