package media_test

import (
	"context"
	"testing"

	"github.com/harunnryd/telira/pkg/errorsx"
	"github.com/harunnryd/telira/pkg/media"
	mockmedia "github.com/harunnryd/telira/pkg/media/mock"
)

func TestExclusiveCaptureStopsPreviousTap(t *testing.T) {
	capture := media.NewExclusiveCapture(mockmedia.NewCapture())

	first, err := capture.Acquire(context.Background(), "default")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	firstTrack := first.AudioTracks()[0].(*mockmedia.Track)

	second, err := capture.Acquire(context.Background(), "headset")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	if firstTrack.Live() {
		t.Fatalf("expected previous tap stopped before switching devices")
	}
	if second.AudioTracks()[0].(*mockmedia.Track).Live() != true {
		t.Fatalf("expected new tap live")
	}
}

func TestExclusiveCaptureAcquireFailureReason(t *testing.T) {
	inner := mockmedia.NewCapture()
	inner.Fail(true)
	capture := media.NewExclusiveCapture(inner)

	if _, err := capture.Acquire(context.Background(), "default"); !errorsx.HasReason(err, errorsx.ReasonMediaAcquire) {
		t.Fatalf("expected media_acquire reason, got %v", err)
	}
}

func TestReleaseCurrentIsIdempotent(t *testing.T) {
	capture := media.NewExclusiveCapture(mockmedia.NewCapture())
	stream, err := capture.Acquire(context.Background(), "default")
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	track := stream.AudioTracks()[0].(*mockmedia.Track)

	capture.ReleaseCurrent()
	capture.ReleaseCurrent()
	if track.StopCount() != 1 {
		t.Fatalf("expected exactly one stop, got %d", track.StopCount())
	}
}
