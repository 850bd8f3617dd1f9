package vm

const (
	FontStart  = uint16(0x000)
	GlyphSize  = 5
	GlyphCount = 16

	addrMask = MemorySize - 1
)

var chip8Font = []uint8{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// Memory is the 4K address space of the machine.
// Addresses are wrapped into range on every access, so an index register
// that has run past 0xFFF reads from the bottom of memory again.
type Memory [MemorySize]uint8

func (m *Memory) Read(addr uint16) uint8 {
	return m[addr&addrMask]
}

func (m *Memory) Write(addr uint16, v uint8) {
	m[addr&addrMask] = v
}

// Word returns the big-endian 16-bit value at addr.
func (m *Memory) Word(addr uint16) uint16 {
	hi := m.Read(addr)
	lo := m.Read(addr + 1)

	return uint16(hi)<<8 | uint16(lo)
}

func (m *Memory) clear() {
	for i := range m {
		m[i] = 0
	}
}

// GlyphAddr returns the address of the built-in sprite for a hex digit.
func GlyphAddr(digit uint8) uint16 {
	return FontStart + uint16(digit)*GlyphSize
}
