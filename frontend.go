package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kapitanov/chip8board/internal/config"
	"github.com/kapitanov/chip8board/internal/display"
	"github.com/kapitanov/chip8board/internal/hal"
	"github.com/kapitanov/chip8board/internal/rng"
	"github.com/kapitanov/chip8board/internal/term"
	"github.com/kapitanov/chip8board/internal/vm"
)

func run(ctx context.Context, cfg *config.Config, program []byte) error {
	var source *rng.Source
	if cfg.Seed != 0 {
		source = rng.New(cfg.Seed)
	} else {
		source = rng.NewRandom()
	}

	machine := vm.New(cfg.Options(source)...)
	if err := machine.Load(program); err != nil {
		return err
	}

	var err error
	switch cfg.Frontend {
	case config.FrontendTerm:
		err = runTerm(ctx, cfg, machine)
	default:
		err = runSDL(ctx, cfg, machine)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runSDL runs the machine in a window until the user quits. A reboot
// resets the machine, which then waits for the start key again.
func runSDL(ctx context.Context, cfg *config.Config, machine *vm.VM) error {
	var cancel context.CancelCauseFunc

	h, err := hal.New(func(cause error) { cancel(cause) })
	if err != nil {
		return fmt.Errorf("unable to initialize hal: %w", err)
	}
	defer h.Shutdown()

	screen, err := display.NewScaled(h, cfg.Scale)
	if err != nil {
		return err
	}

	io := vm.IO{
		Display: screen,
		Keypad:  h,
		Buzzer:  h,
		Status:  h,
	}

	for {
		var runCtx context.Context
		runCtx, cancel = context.WithCancelCause(ctx)

		err = machine.Run(runCtx, io)

		var fault *vm.Fault
		if errors.As(err, &fault) {
			err = h.Wait(runCtx)
		}
		cancel(nil)

		switch {
		case errors.Is(err, hal.ErrReboot):
			machine.Reboot(io)
			continue

		case errors.Is(err, hal.ErrQuit):
			return nil
		}

		return err
	}
}

func runTerm(ctx context.Context, cfg *config.Config, machine *vm.VM) error {
	screen := term.New()
	if cfg.Monitor {
		screen.AttachMonitor(term.NewMonitor(true), machine.Snapshot)
	}

	scaled, err := display.NewScaled(screen, cfg.Scale)
	if err != nil {
		return err
	}

	keys := term.NewKeyReader(term.DefaultHold)
	go keys.Listen(os.Stdin)

	slog.Info("type hex digits and press enter to use the keypad")

	return machine.Run(ctx, vm.IO{
		Display: scaled,
		Keypad:  keys,
	})
}
