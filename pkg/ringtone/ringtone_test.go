package ringtone

import (
	"errors"
	"testing"
)

type fakePlayer struct {
	openErr error
	opens   int
	plays   int
	stops   int
	closes  int
	sources []string
}

func (p *fakePlayer) Open(source string) error {
	p.opens++
	p.sources = append(p.sources, source)
	return p.openErr
}

func (p *fakePlayer) Play() error  { p.plays++; return nil }
func (p *fakePlayer) Stop() error  { p.stops++; return nil }
func (p *fakePlayer) Close() error { p.closes++; return nil }

func TestEnsureInitializedOnce(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(player, "sounds/ringtone.mp3")

	for i := 0; i < 3; i++ {
		if err := c.EnsureInitialized(); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if player.opens != 1 {
		t.Fatalf("expected one open, got %d", player.opens)
	}
	if player.sources[0] != "sounds/ringtone.mp3" {
		t.Fatalf("unexpected source %q", player.sources[0])
	}
}

func TestEnsureInitializedRetriesAfterFailure(t *testing.T) {
	player := &fakePlayer{openErr: errors.New("no audio output")}
	c := NewController(player, "ring.mp3")

	if err := c.EnsureInitialized(); err == nil {
		t.Fatal("expected failure")
	}
	player.openErr = nil
	if err := c.EnsureInitialized(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if player.opens != 2 {
		t.Fatalf("expected retry to reopen, got %d opens", player.opens)
	}
}

func TestPlayRequiresInitialization(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(player, "ring.mp3")

	c.Play()
	if player.plays != 0 {
		t.Fatal("uninitialized controller must stay silent")
	}

	if err := c.EnsureInitialized(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	c.Play()
	c.Play()
	if player.plays != 1 {
		t.Fatalf("expected a single play while already ringing, got %d", player.plays)
	}

	c.Stop()
	c.Stop()
	if player.stops != 1 {
		t.Fatalf("expected a single stop, got %d", player.stops)
	}

	c.Play()
	if player.plays != 2 {
		t.Fatal("expected ring to restart after stop")
	}
}

func TestTeardownStopsAndCloses(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(player, "ring.mp3")

	c.Teardown()
	if player.closes != 0 {
		t.Fatal("teardown before init must be a no-op")
	}

	if err := c.EnsureInitialized(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	c.Play()
	c.Teardown()
	if player.stops != 1 || player.closes != 1 {
		t.Fatalf("expected stop and close, got stops=%d closes=%d", player.stops, player.closes)
	}
}
