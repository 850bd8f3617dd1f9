package hal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/kapitanov/chip8board/internal/display"
	"github.com/kapitanov/chip8board/internal/vm"
)

const (
	PixelSize    = 8
	WindowWidth  = display.PanelWidth * PixelSize
	WindowHeight = display.PanelHeight * PixelSize

	windowTitle = "CHIP-8"
)

// HAL is an SDL window standing in for the board: it renders the panel
// framebuffer and turns the keyboard into the 16-key keypad.
type HAL struct {
	window          *sdl.Window
	renderer        *sdl.Renderer
	texture         *sdl.Texture
	backBuffer      []uint32
	backBufferPitch int

	panel *display.Framebuffer
	exit  context.CancelCauseFunc
}

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

var (
	_ display.Panel     = (*HAL)(nil)
	_ display.Flusher   = (*HAL)(nil)
	_ vm.Keypad         = (*HAL)(nil)
	_ vm.Buzzer         = (*HAL)(nil)
	_ vm.StatusReporter = (*HAL)(nil)
)

// New opens the window. exit is called with ErrQuit or ErrReboot when
// the user closes the window or asks for a reboot.
func New(exit context.CancelCauseFunc) (*HAL, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("failed to init sdl: %w", err)
	}

	window, err := sdl.CreateWindow(windowTitle, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, WindowWidth, WindowHeight, sdl.WINDOW_SHOWN|sdl.WINDOW_UTILITY)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl window: %w", err)
	}
	slog.Debug("hal: create window")
	window.Show()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl renderer: %w", err)
	}
	err = renderer.SetLogicalSize(WindowWidth, WindowHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to resize sdl renderer: %w", err)
	}
	slog.Debug("hal: create renderer")

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, display.PanelWidth, display.PanelHeight)
	if err != nil {
		return nil, fmt.Errorf("failed to create sdl texture: %w", err)
	}
	slog.Debug("hal: create texture")

	return &HAL{
		window:          window,
		renderer:        renderer,
		texture:         texture,
		backBuffer:      make([]uint32, display.PanelWidth*display.PanelHeight),
		backBufferPitch: display.PanelWidth * int(unsafe.Sizeof(uint32(0))),
		panel:           display.NewFramebuffer(display.PanelWidth, display.PanelHeight),
		exit:            exit,
	}, nil
}

func (hal *HAL) Shutdown() {
	if err := hal.texture.Destroy(); err != nil {
		slog.Error("failed to destroy sdl texture", "err", err)
	}

	if err := hal.renderer.Destroy(); err != nil {
		slog.Error("failed to destroy sdl renderer", "err", err)
	}

	if err := hal.window.Destroy(); err != nil {
		slog.Error("failed to destroy sdl window", "err", err)
	}

	sdl.Quit()
}

func (hal *HAL) Size() (int, int) {
	return hal.panel.Size()
}

func (hal *HAL) DrawPixel(x, y int) error {
	return hal.panel.DrawPixel(x, y)
}

func (hal *HAL) Clear() error {
	return hal.panel.Clear()
}

// Flush presents the panel framebuffer in the window.
func (hal *HAL) Flush() error {
	const (
		bgColor = uint32(0x000000)
		fgColor = uint32(0xbea700)
	)

	for y := 0; y < display.PanelHeight; y++ {
		for x := 0; x < display.PanelWidth; x++ {
			color := bgColor
			if hal.panel.Pixel(x, y) {
				color = fgColor
			}

			hal.backBuffer[x+y*display.PanelWidth] = color
		}
	}

	backBufferPtr := unsafe.Pointer(&hal.backBuffer[0])
	if err := hal.texture.Update(nil, backBufferPtr, hal.backBufferPitch); err != nil {
		return fmt.Errorf("failed to update sdl texture: %w", err)
	}

	if err := hal.renderer.Clear(); err != nil {
		return fmt.Errorf("failed to clear sdl renderer: %w", err)
	}

	if err := hal.renderer.Copy(hal.texture, nil, nil); err != nil {
		return fmt.Errorf("failed to copy sdl texture to renderer: %w", err)
	}

	hal.renderer.Present()
	return nil
}

// Poll drains pending window events and returns the keypad bitmask
// from the current keyboard state.
func (hal *HAL) Poll() uint16 {
	hal.pumpEvents()

	state := sdl.GetKeyboardState()

	var keys uint16
	for scancode, key := range keyMap {
		if int(scancode) < len(state) && state[scancode] != 0 {
			keys |= key.Mask()
		}
	}

	return keys
}

func (hal *HAL) pumpEvents() {
	for e := sdl.PollEvent(); e != nil; e = sdl.PollEvent() {
		switch e.GetType() {
		case sdl.QUIT:
			slog.Debug("hal: exit requested")
			hal.exit(ErrQuit)

		case sdl.KEYDOWN:
			switch e.(*sdl.KeyboardEvent).Keysym.Scancode {
			case sdl.SCANCODE_BACKSPACE:
				slog.Debug("hal: reboot requested")
				hal.exit(ErrReboot)
			case sdl.SCANCODE_ESCAPE:
				slog.Debug("hal: exit requested")
				hal.exit(ErrQuit)
			}
		}
	}
}

// SetBuzzer marks the window title while the sound timer runs.
func (hal *HAL) SetBuzzer(on bool) {
	if on {
		hal.window.SetTitle(windowTitle + " ♪")
	} else {
		hal.window.SetTitle(windowTitle)
	}
}

// Status shows a fault in the window title so it stays visible after
// the machine halts.
func (hal *HAL) Status(state vm.State, fault *vm.Fault) {
	if fault != nil {
		hal.window.SetTitle(fmt.Sprintf("%s [%s: %v]", windowTitle, state, fault.Err))
		return
	}
	hal.window.SetTitle(fmt.Sprintf("%s [%s]", windowTitle, state))
}

// Wait keeps the window responsive until the user quits or reboots.
func (hal *HAL) Wait(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / vm.TimerHz)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
			hal.pumpEvents()
		}
	}
}

// Physical                Logical
// ================        =================
// | 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
// | q | w | e | r |       | 4 | 5 | 6 | D |
// | a | s | d | f |  <=>  | 7 | 8 | 9 | E |
// | z | x | c | v |       | A | 0 | B | F |
// ================        =================
var keyMap = map[sdl.Scancode]vm.Key{
	sdl.SCANCODE_X: vm.Key0,
	sdl.SCANCODE_1: vm.Key1,
	sdl.SCANCODE_2: vm.Key2,
	sdl.SCANCODE_3: vm.Key3,
	sdl.SCANCODE_Q: vm.Key4,
	sdl.SCANCODE_W: vm.Key5,
	sdl.SCANCODE_E: vm.Key6,
	sdl.SCANCODE_A: vm.Key7,
	sdl.SCANCODE_S: vm.Key8,
	sdl.SCANCODE_D: vm.Key9,
	sdl.SCANCODE_Z: vm.KeyA,
	sdl.SCANCODE_C: vm.KeyB,
	sdl.SCANCODE_4: vm.KeyC,
	sdl.SCANCODE_R: vm.KeyD,
	sdl.SCANCODE_F: vm.KeyE,
	sdl.SCANCODE_V: vm.KeyF,
}
