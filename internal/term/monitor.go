package term

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/kapitanov/chip8board/internal/vm"
)

var (
	colorSame  = ansi.ColorCode("default:default")
	colorNew   = ansi.ColorCode("default+bu:default")
	colorFault = ansi.ColorCode("red+b:default")
)

// Monitor formats machine snapshots, highlighting registers that
// changed since the previous call.
type Monitor struct {
	Color bool

	prev    vm.Snapshot
	hasPrev bool
}

func NewMonitor(color bool) *Monitor {
	return &Monitor{Color: color}
}

func (m *Monitor) paint(s, color string) string {
	if !m.Color {
		return s
	}
	return color + s + ansi.Reset
}

func (m *Monitor) Render(s vm.Snapshot) string {
	var sb strings.Builder

	state := s.State.String()
	if s.State == vm.Halted {
		state = m.paint(state, colorFault)
	}
	fmt.Fprintf(&sb, "%s  PC=%04x I=%04x SP=%d DT=%02x ST=%02x K=%04x\n", state, s.PC, s.Index, s.SP, s.Delay, s.Sound, s.Keys)

	for i, v := range s.Registers {
		color := colorSame
		if m.hasPrev && m.prev.Registers[i] != v {
			color = colorNew
		}

		fmt.Fprintf(&sb, "V%X=%s", i, m.paint(fmt.Sprintf("%02x", v), color))
		if i%8 == 7 {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
	}

	fmt.Fprintf(&sb, "next: %s\n", s.Next)

	m.prev = s
	m.hasPrev = true
	return sb.String()
}
