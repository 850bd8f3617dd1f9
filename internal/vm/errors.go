package vm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOpcode   = errors.New("invalid opcode")
	ErrStackOverflow   = errors.New("stack overflow")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrProgramTooLarge = errors.New("program too large")
	ErrNoProgram       = errors.New("no program loaded")
)

// Fault is the terminal error recorded when the machine halts.
type Fault struct {
	PC          uint16
	Instruction Instruction
	Err         error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at 0x%04x (opcode 0x%04X, %s): %v", f.PC, f.Instruction.Raw, f.Instruction, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
