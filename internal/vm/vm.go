package vm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	MaxProgramSize  = MemorySize - int(ProgramStart)
	InstructionSize = 2

	DefaultClockHz = 700
)

type VM struct {
	memory    Memory                            // Memory (4k)
	registers [RegisterCount]uint8              // V registers (V0-VF)
	stack     [StackSize]uint16                 // Stack
	sp        uint16                            // Stack pointer
	pc        uint16                            // Program counter
	index     uint16                            // Index register
	timers    Timers                            // Delay and sound timers
	gfx       [ScreenWidth * ScreenHeight]uint8 // Graphics buffer
	keys      uint16                            // Keypad bitmask
	drawFlag  bool                              // Indicates a draw has occurred
	buzzing   bool

	state State
	fault *Fault

	program  []byte
	rng      RNG
	clockHz  int
	timerHz  int
	startKey Key
}

type Option func(*VM)

// WithRNG replaces the random byte source used by CXNN.
func WithRNG(rng RNG) Option {
	return func(vm *VM) { vm.rng = rng }
}

// WithClock sets the instruction rate of Run. Zero runs unthrottled.
func WithClock(hz int) Option {
	return func(vm *VM) { vm.clockHz = hz }
}

func WithTimerRate(hz int) Option {
	return func(vm *VM) { vm.timerHz = hz }
}

// WithStartKey sets the key that moves the machine out of AwaitingTrigger.
func WithStartKey(key Key) Option {
	return func(vm *VM) { vm.startKey = key }
}

func New(opts ...Option) *VM {
	vm := &VM{
		rng:      defaultRNG{},
		clockHz:  DefaultClockHz,
		timerHz:  TimerHz,
		startKey: KeyA,
	}
	for _, opt := range opts {
		opt(vm)
	}

	vm.Reset()
	return vm
}

// Display receives the whole graphics buffer whenever it changes.
type Display interface {
	Push(gfx []uint8) error
}

// Keypad reports the currently pressed keys, bit N set for key N.
type Keypad interface {
	Poll() uint16
}

type RNG interface {
	NextByte() uint8
}

// Buzzer is switched on while the sound timer is non-zero.
type Buzzer interface {
	SetBuzzer(on bool)
}

// StatusReporter is told about every run state transition.
type StatusReporter interface {
	Status(state State, fault *Fault)
}

// IO bundles the collaborators the run loop talks to.
// Buzzer and Status are optional.
type IO struct {
	Display Display
	Keypad  Keypad
	Buzzer  Buzzer
	Status  StatusReporter
}

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

func (k Key) Mask() uint16 {
	return 1 << (k & 0x0F)
}

// Load copies a program image into memory at ProgramStart and resets the machine.
func (vm *VM) Load(program []byte) error {
	if len(program) > MaxProgramSize {
		return fmt.Errorf("%w: %d bytes, at most %d fit", ErrProgramTooLarge, len(program), MaxProgramSize)
	}

	vm.program = append([]byte(nil), program...)
	vm.Reset()
	return nil
}

func (vm *VM) Loaded() bool {
	return vm.program != nil
}

func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0

	// Clear the display
	for i := range vm.gfx {
		vm.gfx[i] = 0
	}
	vm.drawFlag = false

	// Clear the stack, keypad, and V registers
	for i := range vm.stack {
		vm.stack[i] = 0
	}
	vm.keys = 0

	for i := range vm.registers {
		vm.registers[i] = 0
	}

	vm.memory.clear()

	// Load font set into memory
	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", FontStart), "n", len(chip8Font))
	copy(vm.memory[FontStart:], chip8Font)

	if vm.program != nil {
		slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(vm.program))
		copy(vm.memory[ProgramStart:], vm.program)
	}

	vm.timers.reset()
	vm.buzzing = false

	vm.state = AwaitingTrigger
	vm.fault = nil
}

// Reboot resets the machine like Reset and reports the return to
// AwaitingTrigger to io.Status.
func (vm *VM) Reboot(io IO) {
	prev := vm.state
	vm.Reset()

	if prev == vm.state {
		return
	}

	slog.Info("state", "from", prev, "to", vm.state)
	if io.Status != nil {
		io.Status.Status(vm.state, nil)
	}
}

// Cycle runs one iteration of the run loop: sample the keypad, then
// either wait for the start key, execute one instruction, or report
// the fault that halted the machine.
func (vm *VM) Cycle(io IO) error {
	vm.keys = io.Keypad.Poll()

	switch vm.state {
	case AwaitingTrigger:
		if vm.program != nil && vm.keys&vm.startKey.Mask() != 0 {
			vm.setState(Running, io)
		}
		return nil

	case Halted:
		return vm.fault
	}

	if err := vm.step(); err != nil {
		vm.fault = &Fault{PC: vm.pc, Instruction: Decode(vm.fetchOpcode()), Err: err}
		vm.setState(Halted, io)
		return vm.fault
	}

	if vm.drawFlag {
		if err := io.Display.Push(vm.gfx[:]); err != nil {
			return fmt.Errorf("unable to push graphics buffer: %w", err)
		}
		vm.drawFlag = false
	}

	if io.Buzzer != nil {
		if on := vm.timers.Sounding(); on != vm.buzzing {
			io.Buzzer.SetBuzzer(on)
			vm.buzzing = on
		}
	}

	return nil
}

// Run drives the timer ticker and repeats Cycle at the configured clock
// rate until the machine faults, a collaborator fails or ctx is done.
// On cancellation the context cause is returned.
func (vm *VM) Run(ctx context.Context, io IO) error {
	if vm.program == nil {
		return ErrNoProgram
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		RunTicker(ctx, &vm.timers, vm.timerHz)
	}()

	var pace <-chan time.Time
	if vm.clockHz > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(vm.clockHz))
		defer ticker.Stop()
		pace = ticker.C
	}

	slog.Info("waiting for start key", "key", fmt.Sprintf("%X", uint8(vm.startKey)))

	for {
		if err := vm.Cycle(io); err != nil {
			return err
		}

		if pace == nil {
			if err := ctx.Err(); err != nil {
				return context.Cause(ctx)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-pace:
		}
	}
}

func (vm *VM) setState(state State, io IO) {
	if vm.state == state {
		return
	}

	if vm.fault != nil {
		slog.Error("state", "from", vm.state, "to", state, "fault", vm.fault)
	} else {
		slog.Info("state", "from", vm.state, "to", state)
	}

	vm.state = state
	if io.Status != nil {
		io.Status.Status(state, vm.fault)
	}
}

func (vm *VM) step() error {
	return vm.executeOpcode(vm.fetchOpcode())
}

func (vm *VM) fetchOpcode() uint16 {
	return vm.memory.Word(vm.pc)
}

// Accessors for monitors and tests.

func (vm *VM) PC() uint16               { return vm.pc }
func (vm *VM) SP() uint16               { return vm.sp }
func (vm *VM) Index() uint16            { return vm.index }
func (vm *VM) Register(i int) uint8     { return vm.registers[i&0x0F] }
func (vm *VM) Timers() *Timers          { return &vm.timers }
func (vm *VM) Memory() *Memory          { return &vm.memory }
func (vm *VM) Gfx() []uint8             { return vm.gfx[:] }
func (vm *VM) DrawFlag() bool           { return vm.drawFlag }
func (vm *VM) Keys() uint16             { return vm.keys }
func (vm *VM) State() State             { return vm.state }
func (vm *VM) Fault() *Fault            { return vm.fault }
func (vm *VM) Instruction() Instruction { return Decode(vm.fetchOpcode()) }

// Snapshot is a copy of the visible machine state.
type Snapshot struct {
	PC        uint16
	Index     uint16
	SP        uint16
	Registers [RegisterCount]uint8
	Stack     [StackSize]uint16
	Delay     uint8
	Sound     uint8
	Keys      uint16
	State     State
	Next      Instruction
}

func (vm *VM) Snapshot() Snapshot {
	return Snapshot{
		PC:        vm.pc,
		Index:     vm.index,
		SP:        vm.sp,
		Registers: vm.registers,
		Stack:     vm.stack,
		Delay:     vm.timers.Delay(),
		Sound:     vm.timers.Sound(),
		Keys:      vm.keys,
		State:     vm.state,
		Next:      vm.Instruction(),
	}
}
