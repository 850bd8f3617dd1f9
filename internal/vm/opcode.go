package vm

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
)

const flagRegister = 0x0F

func (vm *VM) executeOpcode(opcode uint16) error {
	instr := Decode(opcode)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", vm.pc),
			"opcode", fmt.Sprintf("0x%04x", opcode),
			"instr", instr.String(),
		)
	}

	return instructions[instr.Op](vm, instr)
}

type handler func(vm *VM, instr Instruction) error

// instructions maps every Op to its handler. Handlers that do not
// transfer control advance the program counter by one instruction.
var instructions = [opCount]handler{
	OpInvalid: func(vm *VM, instr Instruction) error {
		return fmt.Errorf("%w 0x%04X", ErrInvalidOpcode, instr.Raw)
	},

	// 0NNN - Machine code routine; not supported, ignored
	OpSys: func(vm *VM, instr Instruction) error {
		vm.pc += InstructionSize
		return nil
	},

	// 00E0 - Clear screen
	OpCls: func(vm *VM, instr Instruction) error {
		for i := range vm.gfx {
			vm.gfx[i] = 0
		}
		vm.drawFlag = true
		vm.pc += InstructionSize
		return nil
	},

	// 00EE - Return from subroutine
	OpRet: func(vm *VM, instr Instruction) error {
		if vm.sp == 0 {
			return ErrStackUnderflow
		}
		vm.sp--
		vm.pc = vm.stack[vm.sp]
		vm.pc += InstructionSize
		return nil
	},

	// 1NNN - Jumps to address NNN
	OpJp: func(vm *VM, instr Instruction) error {
		vm.pc = instr.NNN
		return nil
	},

	// 2NNN - Calls subroutine at NNN
	OpCall: func(vm *VM, instr Instruction) error {
		if int(vm.sp) >= len(vm.stack) {
			return fmt.Errorf("%w: %d nested calls", ErrStackOverflow, vm.sp)
		}
		vm.stack[vm.sp] = vm.pc
		vm.sp++
		vm.pc = instr.NNN
		return nil
	},

	// 3XNN - Skips the next instruction if VX equals NN
	OpSeImm: func(vm *VM, instr Instruction) error {
		vm.skipIf(vm.registers[instr.X] == instr.NN)
		return nil
	},

	// 4XNN - Skips the next instruction if VX does not equal NN
	OpSneImm: func(vm *VM, instr Instruction) error {
		vm.skipIf(vm.registers[instr.X] != instr.NN)
		return nil
	},

	// 5XY0 - Skips the next instruction if VX equals VY
	OpSeReg: func(vm *VM, instr Instruction) error {
		vm.skipIf(vm.registers[instr.X] == vm.registers[instr.Y])
		return nil
	},

	// 6XNN - Sets VX to NN
	OpLdImm: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] = instr.NN
		vm.pc += InstructionSize
		return nil
	},

	// 7XNN - Adds NN to VX, no carry
	OpAddImm: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] += instr.NN
		vm.pc += InstructionSize
		return nil
	},

	// 8XY0 - Sets VX to the value of VY
	OpLdReg: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] = vm.registers[instr.Y]
		vm.pc += InstructionSize
		return nil
	},

	// 8XY1 - Sets VX to (VX OR VY)
	OpOr: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] |= vm.registers[instr.Y]
		vm.pc += InstructionSize
		return nil
	},

	// 8XY2 - Sets VX to (VX AND VY)
	OpAnd: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] &= vm.registers[instr.Y]
		vm.pc += InstructionSize
		return nil
	},

	// 8XY3 - Sets VX to (VX XOR VY)
	OpXor: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] ^= vm.registers[instr.Y]
		vm.pc += InstructionSize
		return nil
	},

	// 8XY4 - Adds VY to VX. VF is set to 1 when there's a carry, and to 0 when there isn't.
	OpAddReg: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]
		y := vm.registers[instr.Y]

		sum := uint16(x) + uint16(y)
		vm.registers[instr.X] = uint8(sum)
		vm.setFlag(sum > 0xFF)
		vm.pc += InstructionSize
		return nil
	},

	// 8XY5 - VY is subtracted from VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
	OpSub: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]
		y := vm.registers[instr.Y]

		vm.registers[instr.X] = x - y
		vm.setFlag(y <= x)
		vm.pc += InstructionSize
		return nil
	},

	// 8XY6 - Shifts VX right by one. VF is set to the least significant bit of VX before the shift.
	OpShr: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]

		vm.registers[instr.X] = x >> 1
		vm.registers[flagRegister] = x & 0x01
		vm.pc += InstructionSize
		return nil
	},

	// 8XY7 - Sets VX to VY minus VX. VF is set to 0 when there's a borrow, and 1 when there isn't.
	OpSubn: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]
		y := vm.registers[instr.Y]

		vm.registers[instr.X] = y - x
		vm.setFlag(x <= y)
		vm.pc += InstructionSize
		return nil
	},

	// 8XYE - Shifts VX left by one. VF is set to the most significant bit of VX before the shift.
	OpShl: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]

		vm.registers[instr.X] = x << 1
		vm.registers[flagRegister] = x >> 7
		vm.pc += InstructionSize
		return nil
	},

	// 9XY0 - Skips the next instruction if VX doesn't equal VY
	OpSneReg: func(vm *VM, instr Instruction) error {
		vm.skipIf(vm.registers[instr.X] != vm.registers[instr.Y])
		return nil
	},

	// ANNN - Sets I to the address NNN
	OpLdI: func(vm *VM, instr Instruction) error {
		vm.index = instr.NNN
		vm.pc += InstructionSize
		return nil
	},

	// BNNN - Jumps to the address NNN plus V0
	OpJpV0: func(vm *VM, instr Instruction) error {
		vm.pc = instr.NNN + uint16(vm.registers[0])
		return nil
	},

	// CXNN - Sets VX to a random number, masked by NN
	OpRnd: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] = vm.rng.NextByte() & instr.NN
		vm.pc += InstructionSize
		return nil
	},

	// DXYN - Draws an 8xN sprite read from I at (VX, VY).
	// VF is set to 1 if any screen pixel is flipped from set to unset.
	OpDrw: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]
		y := vm.registers[instr.Y]

		vm.setFlag(vm.drawSprite(x, y, instr.N))
		vm.drawFlag = true
		vm.pc += InstructionSize
		return nil
	},

	// EX9E - Skips the next instruction if the key stored in VX is pressed
	OpSkp: func(vm *VM, instr Instruction) error {
		vm.skipIf(vm.keyDown(vm.registers[instr.X]))
		return nil
	},

	// EXA1 - Skips the next instruction if the key stored in VX isn't pressed
	OpSknp: func(vm *VM, instr Instruction) error {
		vm.skipIf(!vm.keyDown(vm.registers[instr.X]))
		return nil
	},

	// FX07 - Sets VX to the value of the delay timer
	OpLdVxDT: func(vm *VM, instr Instruction) error {
		vm.registers[instr.X] = vm.timers.Delay()
		vm.pc += InstructionSize
		return nil
	},

	// FX0A - A key press is awaited, and then stored in VX.
	// The program counter stays put until a key is down, so the
	// instruction is executed again on the next cycle.
	OpLdVxK: func(vm *VM, instr Instruction) error {
		if vm.keys == 0 {
			return nil
		}

		vm.registers[instr.X] = uint8(bits.TrailingZeros16(vm.keys))
		vm.pc += InstructionSize
		return nil
	},

	// FX15 - Sets the delay timer to VX
	OpLdDTVx: func(vm *VM, instr Instruction) error {
		vm.timers.SetDelay(vm.registers[instr.X])
		vm.pc += InstructionSize
		return nil
	},

	// FX18 - Sets the sound timer to VX
	OpLdSTVx: func(vm *VM, instr Instruction) error {
		vm.timers.SetSound(vm.registers[instr.X])
		vm.pc += InstructionSize
		return nil
	},

	// FX1E - Adds VX to I
	OpAddI: func(vm *VM, instr Instruction) error {
		vm.index += uint16(vm.registers[instr.X])
		vm.pc += InstructionSize
		return nil
	},

	// FX29 - Sets I to the location of the font sprite for the digit in VX
	OpLdF: func(vm *VM, instr Instruction) error {
		vm.index = GlyphAddr(vm.registers[instr.X])
		vm.pc += InstructionSize
		return nil
	},

	// FX33 - Stores the BCD representation of VX at I, I+1 and I+2
	OpLdB: func(vm *VM, instr Instruction) error {
		x := vm.registers[instr.X]

		vm.memory.Write(vm.index, x/100)
		vm.memory.Write(vm.index+1, (x/10)%10)
		vm.memory.Write(vm.index+2, x%10)
		vm.pc += InstructionSize
		return nil
	},

	// FX55 - Stores V0 to VX in memory starting at address I. I is left unchanged.
	OpStore: func(vm *VM, instr Instruction) error {
		for i := uint16(0); i <= uint16(instr.X); i++ {
			vm.memory.Write(vm.index+i, vm.registers[i])
		}
		vm.pc += InstructionSize
		return nil
	},

	// FX65 - Reads memory starting at address I into V0 to VX. I is left unchanged.
	OpLoad: func(vm *VM, instr Instruction) error {
		for i := uint16(0); i <= uint16(instr.X); i++ {
			vm.registers[i] = vm.memory.Read(vm.index + i)
		}
		vm.pc += InstructionSize
		return nil
	},
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += 2 * InstructionSize
	} else {
		vm.pc += InstructionSize
	}
}

// setFlag stores a boolean result in VF. It is called after the result
// register has been written so VF holds the flag even when X is F.
func (vm *VM) setFlag(set bool) {
	if set {
		vm.registers[flagRegister] = 1
	} else {
		vm.registers[flagRegister] = 0
	}
}

func (vm *VM) keyDown(key uint8) bool {
	if key >= KeyCount {
		return false
	}
	return vm.keys&Key(key).Mask() != 0
}

// drawSprite XORs n rows of 8 pixels from memory at I onto the screen
// and reports whether any lit pixel was turned off. Pixels past the
// right or bottom edge wrap around.
func (vm *VM) drawSprite(xLocation, yLocation, height uint8) bool {
	const width = 8

	hasCollision := false
	for y := uint16(0); y < uint16(height); y++ {
		row := vm.memory.Read(vm.index + y)

		for x := uint16(0); x < width; x++ {
			if row&(0x80>>x) == 0 {
				continue
			}

			screenAddr := getScreenAddr(x+uint16(xLocation), y+uint16(yLocation))
			if vm.gfx[screenAddr] != 0 {
				hasCollision = true
			}
			vm.gfx[screenAddr] ^= 1
		}
	}

	return hasCollision
}

func getScreenAddr(x, y uint16) uint16 {
	x %= ScreenWidth
	y %= ScreenHeight

	return ScreenWidth*y + x
}
