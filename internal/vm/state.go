package vm

import (
	"fmt"
	"math/rand/v2"
)

// State is the run loop state.
type State uint8

const (
	// AwaitingTrigger idles until a program is loaded and the start key is down.
	AwaitingTrigger State = iota
	Running
	// Halted is terminal; it is entered on a fault.
	Halted
)

func (s State) String() string {
	switch s {
	case AwaitingTrigger:
		return "awaiting-trigger"
	case Running:
		return "running"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type defaultRNG struct{}

func (defaultRNG) NextByte() uint8 {
	return uint8(rand.IntN(256))
}
