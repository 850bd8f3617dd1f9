// Package term runs the machine in a text terminal: the panel is drawn
// with half-block characters, keys are read as hex digits from stdin.
package term

import (
	"strings"

	tm "github.com/buger/goterm"

	"github.com/kapitanov/chip8board/internal/display"
	"github.com/kapitanov/chip8board/internal/vm"
)

// Terminal is a display.Panel that repaints the whole terminal on flush.
type Terminal struct {
	panel *display.Framebuffer

	monitor  *Monitor
	snapshot func() vm.Snapshot
}

var (
	_ display.Panel   = (*Terminal)(nil)
	_ display.Flusher = (*Terminal)(nil)
)

func New() *Terminal {
	return &Terminal{
		panel: display.NewFramebuffer(display.PanelWidth, display.PanelHeight),
	}
}

// AttachMonitor prints the machine state under the screen on every flush.
func (t *Terminal) AttachMonitor(m *Monitor, snapshot func() vm.Snapshot) {
	t.monitor = m
	t.snapshot = snapshot
}

func (t *Terminal) Size() (int, int) {
	return t.panel.Size()
}

func (t *Terminal) DrawPixel(x, y int) error {
	return t.panel.DrawPixel(x, y)
}

func (t *Terminal) Clear() error {
	return t.panel.Clear()
}

func (t *Terminal) Flush() error {
	frame := Render(t.panel)
	if t.monitor != nil {
		frame += t.monitor.Render(t.snapshot())
	}

	tm.Clear()
	tm.MoveCursor(1, 1)
	if _, err := tm.Print(frame); err != nil {
		return err
	}
	tm.Flush()
	return nil
}

// Render draws a framebuffer as text, two pixel rows per line.
func Render(fb *display.Framebuffer) string {
	w, h := fb.Size()

	var sb strings.Builder
	sb.Grow((w*3 + 1) * (h + 1) / 2)
	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x++ {
			top, bottom := fb.Pixel(x, y), fb.Pixel(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}
