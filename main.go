package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kapitanov/chip8board/internal/config"
	"github.com/kapitanov/chip8board/internal/loader"
)

func init() {
	// SDL must be driven from the main thread
	runtime.LockOSThread()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cmd := &cobra.Command{
		Use:           filepath.Base(os.Args[0]),
		Short:         "CHIP-8 board emulator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cfg.BindFlags(cmd.PersistentFlags())
	configPath := cmd.PersistentFlags().String("config", "", "read settings from this file instead of the user config folder")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if *configPath != "" {
			if err := cfg.ApplyFile(*configPath, cmd.Flags()); err != nil {
				return err
			}
		}

		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if cfg.Verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))

		return cfg.Validate()
	}

	runCmd := &cobra.Command{
		Use:   "run PATH_TO_ROM_FILE",
		Short: "Run a program image",
		Args:  cobra.ExactArgs(1),
	}
	framed := runCmd.Flags().Bool("framed", false, "the file holds a serial frame, as written by send")

	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !*framed {
			bs, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("unable to load file %q: %w", path, err)
			}

			return run(cmd.Context(), &cfg, bs)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("unable to load file %q: %w", path, err)
		}
		defer f.Close()

		bs, err := loader.New(cfg.Capacity).ReadFrame(f)
		if err != nil {
			return fmt.Errorf("unable to read frame from %q: %w", path, err)
		}

		return run(cmd.Context(), &cfg, bs)
	}

	cmd.AddCommand(
		runCmd,
		&cobra.Command{
			Use:   "receive DEVICE",
			Short: "Receive a program over a serial device, then run it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dev, err := os.OpenFile(args[0], os.O_RDWR, 0)
				if err != nil {
					return fmt.Errorf("unable to open device %q: %w", args[0], err)
				}
				defer dev.Close()

				bs, err := loader.New(cfg.Capacity).Receive(cmd.Context(), dev)
				if err != nil {
					return fmt.Errorf("unable to receive program: %w", err)
				}

				return run(cmd.Context(), &cfg, bs)
			},
		},
		&cobra.Command{
			Use:   "send PATH_TO_ROM_FILE DEVICE",
			Short: "Send a program image to a board over a serial device",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				bs, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("unable to load file %q: %w", args[0], err)
				}

				dev, err := os.OpenFile(args[1], os.O_WRONLY, 0)
				if err != nil {
					return fmt.Errorf("unable to open device %q: %w", args[1], err)
				}
				defer dev.Close()

				return loader.Send(dev, bs)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "err", err)
		stop()
		os.Exit(1)
	}
}
