package rng

import "testing"

func TestSourceIsRepeatable(t *testing.T) {
	a, b := New(42), New(42)

	for i := 0; i < 64; i++ {
		if x, y := a.NextByte(), b.NextByte(); x != y {
			t.Fatalf("byte %d differs: 0x%02x != 0x%02x", i, x, y)
		}
	}
}

func TestSourceCoversByteRange(t *testing.T) {
	s := New(7)
	seen := make(map[uint8]bool)
	for i := 0; i < 20000; i++ {
		seen[s.NextByte()] = true
	}
	if len(seen) != 256 {
		t.Errorf("saw %d distinct bytes, want 256", len(seen))
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence(1, 2, 3)
	want := []uint8{1, 2, 3, 1, 2}
	for i, w := range want {
		if got := s.NextByte(); got != w {
			t.Errorf("byte %d = %d, want %d", i, got, w)
		}
	}

	if got := NewSequence().NextByte(); got != 0 {
		t.Errorf("empty sequence = %d, want 0", got)
	}
}
