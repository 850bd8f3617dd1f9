package vm

import "fmt"

// Op identifies one of the CHIP-8 instructions.
type Op uint8

const (
	OpInvalid Op = iota
	OpSys        // 0NNN
	OpCls        // 00E0
	OpRet        // 00EE
	OpJp         // 1NNN
	OpCall       // 2NNN
	OpSeImm      // 3XNN
	OpSneImm     // 4XNN
	OpSeReg      // 5XY0
	OpLdImm      // 6XNN
	OpAddImm     // 7XNN
	OpLdReg      // 8XY0
	OpOr         // 8XY1
	OpAnd        // 8XY2
	OpXor        // 8XY3
	OpAddReg     // 8XY4
	OpSub        // 8XY5
	OpShr        // 8XY6
	OpSubn       // 8XY7
	OpShl        // 8XYE
	OpSneReg     // 9XY0
	OpLdI        // ANNN
	OpJpV0       // BNNN
	OpRnd        // CXNN
	OpDrw        // DXYN
	OpSkp        // EX9E
	OpSknp       // EXA1
	OpLdVxDT     // FX07
	OpLdVxK      // FX0A
	OpLdDTVx     // FX15
	OpLdSTVx     // FX18
	OpAddI       // FX1E
	OpLdF        // FX29
	OpLdB        // FX33
	OpStore      // FX55
	OpLoad       // FX65

	opCount
)

// Instruction is a decoded opcode word.
type Instruction struct {
	Op  Op
	Raw uint16

	NNN uint16 // 12-bit address
	NN  uint8  // 8-bit immediate
	X   uint8
	Y   uint8
	N   uint8
}

// Fields splits an opcode word into its operand fields and family nibble.
// Every word yields a field tuple; whether it is a valid instruction is
// decided by Decode.
func Fields(raw uint16) (nnn uint16, nn, x, y, n, family uint8) {
	nnn = raw & 0x0FFF
	nn = uint8(raw & 0x00FF)
	x = uint8((raw & 0x0F00) >> 8)
	y = uint8((raw & 0x00F0) >> 4)
	n = uint8(raw & 0x000F)
	family = uint8(raw >> 12)
	return
}

func Decode(raw uint16) Instruction {
	nnn, nn, x, y, n, family := Fields(raw)
	instr := Instruction{
		Op:  decodeOp(raw, family, nn, n),
		Raw: raw,
		NNN: nnn,
		NN:  nn,
		X:   x,
		Y:   y,
		N:   n,
	}

	return instr
}

func decodeOp(raw uint16, family, nn, n uint8) Op {
	switch family {
	case 0x0:
		switch raw {
		case 0x00E0:
			return OpCls
		case 0x00EE:
			return OpRet
		}
		return OpSys

	case 0x1:
		return OpJp

	case 0x2:
		return OpCall

	case 0x3:
		return OpSeImm

	case 0x4:
		return OpSneImm

	case 0x5:
		if n == 0 {
			return OpSeReg
		}

	case 0x6:
		return OpLdImm

	case 0x7:
		return OpAddImm

	case 0x8:
		switch n {
		case 0x0:
			return OpLdReg
		case 0x1:
			return OpOr
		case 0x2:
			return OpAnd
		case 0x3:
			return OpXor
		case 0x4:
			return OpAddReg
		case 0x5:
			return OpSub
		case 0x6:
			return OpShr
		case 0x7:
			return OpSubn
		case 0xE:
			return OpShl
		}

	case 0x9:
		if n == 0 {
			return OpSneReg
		}

	case 0xA:
		return OpLdI

	case 0xB:
		return OpJpV0

	case 0xC:
		return OpRnd

	case 0xD:
		return OpDrw

	case 0xE:
		switch nn {
		case 0x9E:
			return OpSkp
		case 0xA1:
			return OpSknp
		}

	case 0xF:
		switch nn {
		case 0x07:
			return OpLdVxDT
		case 0x0A:
			return OpLdVxK
		case 0x15:
			return OpLdDTVx
		case 0x18:
			return OpLdSTVx
		case 0x1E:
			return OpAddI
		case 0x29:
			return OpLdF
		case 0x33:
			return OpLdB
		case 0x55:
			return OpStore
		case 0x65:
			return OpLoad
		}
	}

	return OpInvalid
}

func (instr Instruction) Valid() bool {
	return instr.Op != OpInvalid
}

// String renders the instruction as assembler text, e.g. "add v0, v1".
func (instr Instruction) String() string {
	x, y := instr.X, instr.Y

	switch instr.Op {
	case OpSys:
		return fmt.Sprintf("sys 0x%03x", instr.NNN)
	case OpCls:
		return "cls"
	case OpRet:
		return "ret"
	case OpJp:
		return fmt.Sprintf("jp 0x%03x", instr.NNN)
	case OpCall:
		return fmt.Sprintf("call 0x%03x", instr.NNN)
	case OpSeImm:
		return fmt.Sprintf("se v%x, %d", x, instr.NN)
	case OpSneImm:
		return fmt.Sprintf("sne v%x, %d", x, instr.NN)
	case OpSeReg:
		return fmt.Sprintf("se v%x, v%x", x, y)
	case OpLdImm:
		return fmt.Sprintf("ld v%x, %d", x, instr.NN)
	case OpAddImm:
		return fmt.Sprintf("add v%x, %d", x, instr.NN)
	case OpLdReg:
		return fmt.Sprintf("ld v%x, v%x", x, y)
	case OpOr:
		return fmt.Sprintf("or v%x, v%x", x, y)
	case OpAnd:
		return fmt.Sprintf("and v%x, v%x", x, y)
	case OpXor:
		return fmt.Sprintf("xor v%x, v%x", x, y)
	case OpAddReg:
		return fmt.Sprintf("add v%x, v%x", x, y)
	case OpSub:
		return fmt.Sprintf("sub v%x, v%x", x, y)
	case OpShr:
		return fmt.Sprintf("shr v%x", x)
	case OpSubn:
		return fmt.Sprintf("subn v%x, v%x", x, y)
	case OpShl:
		return fmt.Sprintf("shl v%x", x)
	case OpSneReg:
		return fmt.Sprintf("sne v%x, v%x", x, y)
	case OpLdI:
		return fmt.Sprintf("ld i, 0x%03x", instr.NNN)
	case OpJpV0:
		return fmt.Sprintf("jp v0, 0x%03x", instr.NNN)
	case OpRnd:
		return fmt.Sprintf("rnd v%x, 0x%02x", x, instr.NN)
	case OpDrw:
		return fmt.Sprintf("drw v%x, v%x, %d", x, y, instr.N)
	case OpSkp:
		return fmt.Sprintf("skp v%x", x)
	case OpSknp:
		return fmt.Sprintf("sknp v%x", x)
	case OpLdVxDT:
		return fmt.Sprintf("ld v%x, dt", x)
	case OpLdVxK:
		return fmt.Sprintf("ld v%x, k", x)
	case OpLdDTVx:
		return fmt.Sprintf("ld dt, v%x", x)
	case OpLdSTVx:
		return fmt.Sprintf("ld st, v%x", x)
	case OpAddI:
		return fmt.Sprintf("add i, v%x", x)
	case OpLdF:
		return fmt.Sprintf("ld f, v%x", x)
	case OpLdB:
		return fmt.Sprintf("ld b, v%x", x)
	case OpStore:
		return fmt.Sprintf("ld [i], v%x", x)
	case OpLoad:
		return fmt.Sprintf("ld v%x, [i]", x)
	}

	return fmt.Sprintf("unknown 0x%04X", instr.Raw)
}
