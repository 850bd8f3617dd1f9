package vm

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTimersTick(t *testing.T) {
	tests := []struct {
		start uint8
		ticks int
		want  uint8
	}{
		{10, 3, 7},
		{3, 3, 0},
		{2, 10, 0},
		{0, 1, 0},
		{255, 255, 0},
	}

	for _, tt := range tests {
		var timers Timers
		timers.SetDelay(tt.start)
		timers.SetSound(tt.start)

		for i := 0; i < tt.ticks; i++ {
			timers.Tick()
		}

		if got := timers.Delay(); got != tt.want {
			t.Errorf("delay %d after %d ticks = %d, want %d", tt.start, tt.ticks, got, tt.want)
		}
		if got := timers.Sound(); got != tt.want {
			t.Errorf("sound %d after %d ticks = %d, want %d", tt.start, tt.ticks, got, tt.want)
		}
		if timers.Sounding() != (tt.want > 0) {
			t.Errorf("Sounding() = %v with sound %d", timers.Sounding(), tt.want)
		}
	}
}

func TestTimersConcurrentTicksAreNotLost(t *testing.T) {
	var timers Timers
	timers.SetDelay(200)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				timers.Tick()
			}
		}()
	}
	wg.Wait()

	if got := timers.Delay(); got != 0 {
		t.Errorf("delay = %d after 200 concurrent ticks, want 0", got)
	}
}

func TestRunTicker(t *testing.T) {
	var timers Timers
	timers.SetDelay(255)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunTicker(ctx, &timers, 1000)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for timers.Delay() == 255 {
		select {
		case <-deadline:
			t.Fatal("ticker never decremented the delay timer")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done

	stopped := timers.Delay()
	time.Sleep(10 * time.Millisecond)
	if timers.Delay() != stopped {
		t.Error("ticker kept running after cancel")
	}
}
