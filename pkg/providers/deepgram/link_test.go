package deepgram

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/harunnryd/telira/pkg/frames"
)

func TestBuildListenURL(t *testing.T) {
	raw, err := buildListenURL(Config{
		APIBaseURL: "https://api.deepgram.com/v1",
		Model:      "nova-3",
	}, "local")
	if err != nil {
		t.Fatalf("buildListenURL: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if parsed.Scheme != "wss" {
		t.Fatalf("expected wss scheme, got %q", parsed.Scheme)
	}
	if parsed.Path != "/v1/listen" {
		t.Fatalf("unexpected path %q", parsed.Path)
	}

	query := parsed.Query()
	want := map[string]string{
		"model":           "nova-3",
		"punctuate":       "true",
		"interim_results": "true",
		"smart_format":    "true",
		"utterances":      "true",
		"multichannel":    "true",
		"diarize":         "true",
		"extra":           "source:local",
	}
	for key, value := range want {
		if got := query.Get(key); got != value {
			t.Errorf("query %s = %q, want %q", key, got, value)
		}
	}
	if query.Has("language") {
		t.Error("language must be omitted when unset")
	}
}

func TestBuildListenURLChannelTag(t *testing.T) {
	raw, err := buildListenURL(Config{Model: "nova-3"}, "remote")
	if err != nil {
		t.Fatalf("buildListenURL: %v", err)
	}
	parsed, _ := url.Parse(raw)
	if got := parsed.Query().Get("extra"); got != "source:remote" {
		t.Fatalf("extra = %q, want source:remote", got)
	}
}

func TestBuildListenURLPlainHTTP(t *testing.T) {
	raw, err := buildListenURL(Config{APIBaseURL: "http://localhost:9090/v1/", Model: "nova-3"}, "local")
	if err != nil {
		t.Fatalf("buildListenURL: %v", err)
	}
	parsed, _ := url.Parse(raw)
	if parsed.Scheme != "ws" {
		t.Fatalf("expected ws scheme for a plain http base, got %q", parsed.Scheme)
	}
	if parsed.Host != "localhost:9090" {
		t.Fatalf("unexpected host %q", parsed.Host)
	}
}

func TestListenResponseDecoding(t *testing.T) {
	payload := []byte(`{
		"is_final": true,
		"speech_final": false,
		"channel": {
			"alternatives": [{
				"transcript": " hello there ",
				"words": [{"speaker": 1}, {"speaker": 0}]
			}]
		},
		"metadata": {"extra": {"source": "remote"}}
	}`)

	var response listenResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := response.transcript(); got != "hello there" {
		t.Fatalf("transcript = %q", got)
	}

	meta := response.meta()
	if meta[frames.MetaSource] != "remote" {
		t.Fatalf("source tag = %q, want remote", meta[frames.MetaSource])
	}
	if meta[frames.MetaIsFinal] != "true" {
		t.Fatalf("is_final = %q, want true", meta[frames.MetaIsFinal])
	}
	if meta[frames.MetaSpeaker] != "1" {
		t.Fatalf("speaker = %q, want 1", meta[frames.MetaSpeaker])
	}
}

func TestListenResponseWithoutSourceTag(t *testing.T) {
	payload := []byte(`{"channel":{"alternatives":[{"transcript":"only text"}]}}`)

	var response listenResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	meta := response.meta()
	if _, ok := meta[frames.MetaSource]; ok {
		t.Fatal("missing extra must not fabricate a source tag")
	}
	if _, ok := meta[frames.MetaSpeaker]; ok {
		t.Fatal("missing words must not fabricate a speaker")
	}
}

func TestLinkFactoryRequiresAPIKey(t *testing.T) {
	factory := NewLinkFactory(Config{})
	if _, err := factory("local"); err == nil {
		t.Fatal("expected error for a missing api key")
	}

	factory = NewLinkFactory(Config{APIKey: "dg-test"})
	link, err := factory("local")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if link.Name() != "deepgram" {
		t.Fatalf("unexpected link name %q", link.Name())
	}
}
