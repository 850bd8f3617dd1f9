// Package config holds the runtime settings of the emulator.
//
// Settings come from built-in defaults, then an optional config.json in
// the user's config folder, then command line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shibukawa/configdir"
	"github.com/spf13/pflag"

	"github.com/kapitanov/chip8board/internal/display"
	"github.com/kapitanov/chip8board/internal/loader"
	"github.com/kapitanov/chip8board/internal/vm"
)

const (
	FileName = "config.json"

	vendorName = "chip8board"

	FrontendSDL  = "sdl"
	FrontendTerm = "term"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	ClockHz  int    `json:"clock_hz"`
	TimerHz  int    `json:"timer_hz"`
	Scale    int    `json:"scale"`
	StartKey Key    `json:"start_key"`
	Frontend string `json:"frontend"`
	Seed     uint64 `json:"seed"`
	Capacity int    `json:"capacity"`
	Monitor  bool   `json:"monitor"`
	Verbose  bool   `json:"verbose"`
}

func Default() Config {
	return Config{
		ClockHz:  vm.DefaultClockHz,
		TimerHz:  vm.TimerHz,
		Scale:    display.DefaultScale,
		StartKey: Key(vm.KeyA),
		Frontend: FrontendSDL,
		Capacity: loader.DefaultCapacity,
	}
}

// Load returns the defaults overlaid with the first config.json found in
// the user's config folders. A missing file is not an error.
func Load() (Config, error) {
	cfg := Default()

	dirs := configdir.New(vendorName, "")
	folder := dirs.QueryFolderContainsFile(FileName)
	if folder == nil {
		return cfg, nil
	}

	data, err := folder.ReadFile(FileName)
	if err != nil {
		return cfg, fmt.Errorf("unable to read %s in %s: %w", FileName, folder.Path, err)
	}

	if err := cfg.decode(data); err != nil {
		return cfg, fmt.Errorf("unable to parse %s in %s: %w", FileName, folder.Path, err)
	}

	return cfg, nil
}

// LoadFile overlays the defaults with an explicit config file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("unable to read config %q: %w", path, err)
	}

	if err := cfg.decode(data); err != nil {
		return cfg, fmt.Errorf("unable to parse config %q: %w", path, err)
	}

	return cfg, nil
}

// ApplyFile replaces the settings with the defaults overlaid by the file
// at path, then sets again every flag already set on fs so the command
// line keeps precedence over the file.
func (c *Config) ApplyFile(path string, fs *pflag.FlagSet) error {
	set := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		set[f.Name] = f.Value.String()
	})

	loaded, err := LoadFile(path)
	if err != nil {
		return err
	}
	*c = loaded

	for name, value := range set {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("unable to apply --%s after reading %q: %w", name, path, err)
		}
	}

	return nil
}

func (c *Config) decode(data []byte) error {
	if err := json.Unmarshal(data, c); err != nil {
		return err
	}
	return c.Validate()
}

// BindFlags registers flags that override the current values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.ClockHz, "clock", c.ClockHz, "instructions per second (0 = unthrottled)")
	fs.IntVar(&c.TimerHz, "timer", c.TimerHz, "delay and sound timer rate in Hz")
	fs.IntVar(&c.Scale, "scale", c.Scale, "panel pixels per CHIP-8 pixel")
	fs.Var(&c.StartKey, "start-key", "hex key that starts the program")
	fs.StringVar(&c.Frontend, "frontend", c.Frontend, "frontend to use: sdl or term")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 = random)")
	fs.IntVar(&c.Capacity, "capacity", c.Capacity, "serial loader program capacity in bytes")
	fs.BoolVar(&c.Monitor, "monitor", c.Monitor, "show machine state next to the screen (term frontend)")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "enable verbose logging")
}

func (c *Config) Validate() error {
	switch {
	case c.ClockHz < 0:
		return fmt.Errorf("%w: clock must not be negative", ErrInvalid)
	case c.TimerHz <= 0:
		return fmt.Errorf("%w: timer rate must be positive", ErrInvalid)
	case c.Scale <= 0:
		return fmt.Errorf("%w: scale must be positive", ErrInvalid)
	case c.Capacity <= 0 || c.Capacity > vm.MaxProgramSize:
		return fmt.Errorf("%w: capacity must be within 1..%d", ErrInvalid, vm.MaxProgramSize)
	}

	switch c.Frontend {
	case FrontendSDL, FrontendTerm:
	default:
		return fmt.Errorf("%w: unknown frontend %q", ErrInvalid, c.Frontend)
	}

	return nil
}

// Options converts the config into machine options.
func (c *Config) Options(rng vm.RNG) []vm.Option {
	return []vm.Option{
		vm.WithClock(c.ClockHz),
		vm.WithTimerRate(c.TimerHz),
		vm.WithStartKey(vm.Key(c.StartKey)),
		vm.WithRNG(rng),
	}
}

// Key is a keypad key written as a single hex digit.
type Key vm.Key

var _ pflag.Value = (*Key)(nil)

func (k Key) String() string {
	return strings.ToUpper(strconv.FormatUint(uint64(k), 16))
}

func (k *Key) Set(s string) error {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil || v >= vm.KeyCount {
		return fmt.Errorf("%w: key %q is not a hex digit 0-F", ErrInvalid, s)
	}

	*k = Key(v)
	return nil
}

func (k *Key) Type() string {
	return "key"
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	return k.Set(string(text))
}
