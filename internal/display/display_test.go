package display

import (
	"errors"
	"testing"

	"github.com/kapitanov/chip8board/internal/vm"
)

type recordingPanel struct {
	*Framebuffer
	clears  int
	flushes int
}

func (p *recordingPanel) Clear() error {
	p.clears++
	return p.Framebuffer.Clear()
}

func (p *recordingPanel) Flush() error {
	p.flushes++
	return nil
}

func TestScaledPush(t *testing.T) {
	panel := &recordingPanel{Framebuffer: NewFramebuffer(PanelWidth, PanelHeight)}
	scaled, err := NewScaled(panel, DefaultScale)
	if err != nil {
		t.Fatalf("NewScaled: %v", err)
	}
	if scaled.OffsetX != 2 || scaled.OffsetY != 0 {
		t.Fatalf("offset = (%d,%d), want (2,0)", scaled.OffsetX, scaled.OffsetY)
	}

	gfx := make([]uint8, vm.ScreenWidth*vm.ScreenHeight)
	gfx[0] = 1                    // (0,0)
	gfx[63+31*vm.ScreenWidth] = 1 // (63,31)
	if err := scaled.Push(gfx); err != nil {
		t.Fatalf("Push: %v", err)
	}

	lit := [][2]int{{2, 0}, {3, 0}, {2, 1}, {3, 1}, {128, 62}, {129, 62}, {128, 63}, {129, 63}}
	for _, p := range lit {
		if !panel.Pixel(p[0], p[1]) {
			t.Errorf("pixel (%d,%d) not lit", p[0], p[1])
		}
	}
	if panel.Pixel(4, 0) || panel.Pixel(0, 0) {
		t.Error("pixels outside the scaled cell are lit")
	}
	if panel.clears != 1 || panel.flushes != 1 {
		t.Errorf("clears = %d flushes = %d, want 1 each", panel.clears, panel.flushes)
	}

	// A second push with an empty buffer clears the previous frame.
	if err := scaled.Push(make([]uint8, len(gfx))); err != nil {
		t.Fatal(err)
	}
	if panel.Pixel(2, 0) {
		t.Error("stale pixel survived a push")
	}
}

func TestNewScaledRejectsOversize(t *testing.T) {
	_, err := NewScaled(NewFramebuffer(PanelWidth, PanelHeight), 3)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestFramebufferBounds(t *testing.T) {
	fb := NewFramebuffer(PanelWidth, PanelHeight)

	if err := fb.DrawPixel(131, 63); err != nil {
		t.Errorf("DrawPixel(131,63): %v", err)
	}
	for _, p := range [][2]int{{132, 0}, {0, 64}, {-1, 0}} {
		if err := fb.DrawPixel(p[0], p[1]); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("DrawPixel(%d,%d) err = %v, want ErrOutOfRange", p[0], p[1], err)
		}
	}
}

func TestPushRejectsWrongBufferSize(t *testing.T) {
	scaled, err := NewScaled(NewFramebuffer(PanelWidth, PanelHeight), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := scaled.Push(make([]uint8, 10)); err == nil {
		t.Error("short buffer accepted")
	}
}
