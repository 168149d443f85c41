package events

import (
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("NewBus() returned nil")
	}
	if bus.RoundsFinished == nil {
		t.Fatal("RoundsFinished channel is nil")
	}
}

func TestBus_PublishReceive(t *testing.T) {
	bus := NewBus()
	ev := RoundFinished{TeamName: "ALPHA", Round: 1, Status: "waiting", Score: 320}

	go bus.Publish(ev)

	select {
	case received := <-bus.RoundsFinished:
		if received.TeamName != "ALPHA" || received.Score != 320 {
			t.Errorf("received = %+v, want ALPHA 320", received)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PublishDropsWhenFull(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(bus.RoundsFinished)+5; i++ {
			bus.Publish(RoundFinished{TeamName: "X", Round: 1})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Publish blocked on a full bus")
	}
	if len(bus.RoundsFinished) != cap(bus.RoundsFinished) {
		t.Errorf("buffered = %d, want %d", len(bus.RoundsFinished), cap(bus.RoundsFinished))
	}
}
