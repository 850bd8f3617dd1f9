// Package rng provides random byte sources for the CXNN instruction.
package rng

import (
	"math/rand/v2"
	"sync"
)

// Source draws bytes from a PCG generator. A fixed seed gives a
// repeatable run.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

func New(seed uint64) *Source {
	return &Source{r: rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))}
}

// NewRandom seeds the generator from the runtime's entropy source.
func NewRandom() *Source {
	return New(rand.Uint64())
}

func (s *Source) NextByte() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint8(s.r.UintN(256))
}

// Sequence replays a fixed list of bytes, wrapping at the end.
type Sequence struct {
	values []uint8
	next   int
}

func NewSequence(values ...uint8) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) NextByte() uint8 {
	if len(s.values) == 0 {
		return 0
	}

	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	return v
}
