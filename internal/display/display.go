// Package display maps the 64x32 CHIP-8 graphics buffer onto pixel
// addressed panels.
package display

import (
	"errors"
	"fmt"

	"github.com/kapitanov/chip8board/internal/vm"
)

const (
	// PanelWidth and PanelHeight are the dimensions of the board's OLED panel.
	PanelWidth  = 132
	PanelHeight = 64

	DefaultScale = 2
)

var ErrOutOfRange = errors.New("pixel out of range")

// Panel is a monochrome display that can only light single pixels.
type Panel interface {
	DrawPixel(x, y int) error
	Clear() error
	Size() (width, height int)
}

// Flusher is implemented by panels that buffer pixel writes.
type Flusher interface {
	Flush() error
}

// Scaled pushes a graphics buffer to a Panel, drawing every lit cell as
// a Scale x Scale block offset by (OffsetX, OffsetY).
type Scaled struct {
	Panel   Panel
	Scale   int
	OffsetX int
	OffsetY int
}

var _ vm.Display = (*Scaled)(nil)

// NewScaled centers the scaled buffer on the panel.
func NewScaled(panel Panel, scale int) (*Scaled, error) {
	if scale <= 0 {
		scale = DefaultScale
	}

	w, h := panel.Size()
	bw, bh := vm.ScreenWidth*scale, vm.ScreenHeight*scale
	if bw > w || bh > h {
		return nil, fmt.Errorf("%w: %dx%d buffer at scale %d does not fit a %dx%d panel", ErrOutOfRange, vm.ScreenWidth, vm.ScreenHeight, scale, w, h)
	}

	return &Scaled{
		Panel:   panel,
		Scale:   scale,
		OffsetX: (w - bw) / 2,
		OffsetY: (h - bh) / 2,
	}, nil
}

func (s *Scaled) Push(gfx []uint8) error {
	if len(gfx) != vm.ScreenWidth*vm.ScreenHeight {
		return fmt.Errorf("unexpected graphics buffer size %d", len(gfx))
	}

	if err := s.Panel.Clear(); err != nil {
		return fmt.Errorf("unable to clear panel: %w", err)
	}

	for y := 0; y < vm.ScreenHeight; y++ {
		for x := 0; x < vm.ScreenWidth; x++ {
			if gfx[x+y*vm.ScreenWidth] == 0 {
				continue
			}

			if err := s.drawCell(x, y); err != nil {
				return err
			}
		}
	}

	if f, ok := s.Panel.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (s *Scaled) drawCell(x, y int) error {
	px := s.OffsetX + x*s.Scale
	py := s.OffsetY + y*s.Scale

	for dy := 0; dy < s.Scale; dy++ {
		for dx := 0; dx < s.Scale; dx++ {
			if err := s.Panel.DrawPixel(px+dx, py+dy); err != nil {
				return fmt.Errorf("unable to draw cell (%d,%d): %w", x, y, err)
			}
		}
	}

	return nil
}

// Framebuffer is an in-memory Panel. It backs the windowed and terminal
// frontends, which render it in one go after each push.
type Framebuffer struct {
	width, height int
	pixels        []bool
}

func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pixels: make([]bool, width*height),
	}
}

func (f *Framebuffer) Size() (int, int) {
	return f.width, f.height
}

func (f *Framebuffer) DrawPixel(x, y int) error {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y)
	}

	f.pixels[x+y*f.width] = true
	return nil
}

func (f *Framebuffer) Clear() error {
	for i := range f.pixels {
		f.pixels[i] = false
	}
	return nil
}

func (f *Framebuffer) Pixel(x, y int) bool {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return false
	}
	return f.pixels[x+y*f.width]
}
