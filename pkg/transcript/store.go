package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Artifact is the final deduplicated transcript for one call session.
type Artifact struct {
	SessionID     string   `json:"session_id"`
	CorrelationID string   `json:"correlation_id"`
	Lines         []string `json:"lines"`
}

// ErrDuplicate indicates an artifact for the same correlation id was already
// stored. Callers treat it as a no-op, not a failure.
var ErrDuplicate = errors.New("transcript already stored")

// Store is the persistence collaborator. Lookup-before-store idempotency is
// its responsibility.
type Store interface {
	StoreTranscript(ctx context.Context, artifact Artifact) error
}

// MemoryStore keeps artifacts in memory, keyed by correlation id.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts map[string]Artifact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]Artifact)}
}

func (s *MemoryStore) StoreTranscript(ctx context.Context, artifact Artifact) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[artifact.CorrelationID]; exists {
		return ErrDuplicate
	}
	s.artifacts[artifact.CorrelationID] = artifact
	return nil
}

// Get returns a stored artifact by correlation id.
func (s *MemoryStore) Get(correlationID string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[correlationID]
	return artifact, ok
}

// HTTPStore submits artifacts to an external storage endpoint as JSON.
type HTTPStore struct {
	url    string
	client *http.Client
}

func NewHTTPStore(url string) *HTTPStore {
	return &HTTPStore{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPStore) StoreTranscript(ctx context.Context, artifact Artifact) error {
	body, err := json.Marshal(artifact)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrDuplicate
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transcript store returned %d", resp.StatusCode)
	}
	return nil
}
