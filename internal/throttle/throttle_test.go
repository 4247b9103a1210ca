package throttle

import (
	"context"
	"testing"
	"time"
)

func TestPacerDelaysFirstCall(t *testing.T) {
	t.Parallel()

	p := New(40 * time.Millisecond)
	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("expected two delays, waited %v", elapsed)
	}
}

func TestPacerZeroDelay(t *testing.T) {
	t.Parallel()

	p := New(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatalf("zero delay must not block")
	}
}

func TestPacerHonoursCancellation(t *testing.T) {
	t.Parallel()

	p := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
