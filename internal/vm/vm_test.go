package vm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kapitanov/chip8board/internal/loader"
	"github.com/kapitanov/chip8board/internal/rng"
)

type fakeDisplay struct {
	pushes int
	last   []uint8
	err    error
}

func (d *fakeDisplay) Push(gfx []uint8) error {
	d.pushes++
	d.last = append(d.last[:0], gfx...)
	return d.err
}

type fakeKeypad struct {
	keys uint16
}

func (k *fakeKeypad) Poll() uint16 {
	return k.keys
}

type fakeStatus struct {
	states []State
	fault  *Fault
}

func (s *fakeStatus) Status(state State, fault *Fault) {
	s.states = append(s.states, state)
	s.fault = fault
}

type fakeBuzzer struct {
	toggles []bool
}

func (b *fakeBuzzer) SetBuzzer(on bool) {
	b.toggles = append(b.toggles, on)
}

type testRig struct {
	vm      *VM
	display *fakeDisplay
	keypad  *fakeKeypad
	status  *fakeStatus
}

func (r *testRig) io() IO {
	return IO{Display: r.display, Keypad: r.keypad, Status: r.status}
}

// newTestRig loads the opcode words at ProgramStart and puts the machine
// straight into the Running state.
func newTestRig(t *testing.T, words ...uint16) *testRig {
	t.Helper()

	program := make([]byte, 0, len(words)*2)
	for _, w := range words {
		program = append(program, byte(w>>8), byte(w))
	}

	machine := New(WithRNG(rng.NewSequence()), WithClock(0))
	if err := machine.Load(program); err != nil {
		t.Fatalf("Load: %v", err)
	}
	machine.state = Running

	return &testRig{
		vm:      machine,
		display: &fakeDisplay{},
		keypad:  &fakeKeypad{},
		status:  &fakeStatus{},
	}
}

func (r *testRig) cycle(t *testing.T, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		if err := r.vm.Cycle(r.io()); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
}

func TestNewInitialState(t *testing.T) {
	machine := New()

	if machine.PC() != ProgramStart {
		t.Errorf("PC = 0x%04x, want 0x%04x", machine.PC(), ProgramStart)
	}
	if machine.SP() != 0 || machine.Index() != 0 {
		t.Errorf("SP = %d, I = 0x%04x, want zero", machine.SP(), machine.Index())
	}
	if machine.State() != AwaitingTrigger {
		t.Errorf("state = %v, want %v", machine.State(), AwaitingTrigger)
	}
	if machine.Loaded() {
		t.Error("fresh machine reports a loaded program")
	}
	for i, b := range chip8Font {
		if got := machine.Memory().Read(uint16(i)); got != b {
			t.Fatalf("font byte %d = 0x%02x, want 0x%02x", i, got, b)
		}
	}
	for i, px := range machine.Gfx() {
		if px != 0 {
			t.Fatalf("pixel %d set on a fresh machine", i)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("copies program to 0x200", func(t *testing.T) {
		machine := New()
		if err := machine.Load([]byte{0x12, 0x34}); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got := machine.Memory().Word(ProgramStart); got != 0x1234 {
			t.Errorf("word at 0x200 = 0x%04x, want 0x1234", got)
		}
	})

	t.Run("rejects oversized program", func(t *testing.T) {
		machine := New()
		err := machine.Load(make([]byte, MaxProgramSize+1))
		if !errors.Is(err, ErrProgramTooLarge) {
			t.Fatalf("err = %v, want ErrProgramTooLarge", err)
		}
		if machine.Loaded() {
			t.Error("oversized program marked as loaded")
		}
	})
}

func TestCycleAwaitsStartKey(t *testing.T) {
	r := newTestRig(t, 0x6005)
	r.vm.state = AwaitingTrigger

	r.keypad.keys = Key1.Mask()
	r.cycle(t, 3)
	if r.vm.State() != AwaitingTrigger {
		t.Fatalf("state = %v after non-start key, want %v", r.vm.State(), AwaitingTrigger)
	}
	if r.vm.PC() != ProgramStart {
		t.Fatalf("instructions executed before the start key")
	}

	r.keypad.keys = KeyA.Mask()
	r.cycle(t, 1)
	if r.vm.State() != Running {
		t.Fatalf("state = %v, want %v", r.vm.State(), Running)
	}
	if len(r.status.states) != 1 || r.status.states[0] != Running {
		t.Errorf("status reports = %v, want [running]", r.status.states)
	}

	r.cycle(t, 1)
	if r.vm.Register(0) != 5 {
		t.Errorf("V0 = %d, want 5", r.vm.Register(0))
	}
}

func TestCycleWithoutProgramNeverStarts(t *testing.T) {
	machine := New()
	r := &testRig{vm: machine, display: &fakeDisplay{}, keypad: &fakeKeypad{keys: KeyA.Mask()}, status: &fakeStatus{}}

	r.cycle(t, 2)
	if machine.State() != AwaitingTrigger {
		t.Errorf("state = %v, want %v", machine.State(), AwaitingTrigger)
	}
}

func TestCustomStartKey(t *testing.T) {
	machine := New(WithStartKey(KeyF))
	if err := machine.Load([]byte{0x00, 0xE0}); err != nil {
		t.Fatal(err)
	}
	keypad := &fakeKeypad{keys: KeyA.Mask()}
	io := IO{Display: &fakeDisplay{}, Keypad: keypad}

	_ = machine.Cycle(io)
	if machine.State() != AwaitingTrigger {
		t.Fatalf("key A started a machine waiting for key F")
	}

	keypad.keys = KeyF.Mask()
	_ = machine.Cycle(io)
	if machine.State() != Running {
		t.Fatalf("state = %v, want %v", machine.State(), Running)
	}
}

func TestLoadAddExample(t *testing.T) {
	r := newTestRig(t, 0x6005, 0x7003)

	r.cycle(t, 2)

	if got := r.vm.Register(0); got != 8 {
		t.Errorf("V0 = %d, want 8", got)
	}
	if got := r.vm.PC(); got != 0x204 {
		t.Errorf("PC = 0x%04x, want 0x0204", got)
	}
}

func TestClearScreenPushesOnce(t *testing.T) {
	r := newTestRig(t, 0x00E0, 0x6001)
	for i := range r.vm.gfx {
		r.vm.gfx[i] = 1
	}

	r.cycle(t, 1)

	if r.display.pushes != 1 {
		t.Fatalf("display pushed %d times, want 1", r.display.pushes)
	}
	for i, px := range r.display.last {
		if px != 0 {
			t.Fatalf("pushed pixel %d = %d, want 0", i, px)
		}
	}
	if r.vm.DrawFlag() {
		t.Error("draw flag still set after push")
	}

	r.cycle(t, 1)
	if r.display.pushes != 1 {
		t.Errorf("display pushed again without a draw: %d pushes", r.display.pushes)
	}
}

func TestDisplayErrorPropagates(t *testing.T) {
	r := newTestRig(t, 0x00E0)
	r.display.err = errors.New("bus error")

	err := r.vm.Cycle(r.io())
	if err == nil || !errors.Is(err, r.display.err) {
		t.Fatalf("err = %v, want wrapped bus error", err)
	}
	if r.vm.State() != Running {
		t.Errorf("display failure changed state to %v", r.vm.State())
	}
}

func TestFaultHaltsMachine(t *testing.T) {
	r := newTestRig(t, 0x6001, 0x5121, 0x6002)

	r.cycle(t, 1)
	err := r.vm.Cycle(r.io())

	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("err = %v, want ErrInvalidOpcode", err)
	}
	if fault.PC != 0x202 || fault.Instruction.Raw != 0x5121 {
		t.Errorf("fault at 0x%04x opcode 0x%04x, want 0x0202 / 0x5121", fault.PC, fault.Instruction.Raw)
	}
	if r.vm.State() != Halted {
		t.Fatalf("state = %v, want %v", r.vm.State(), Halted)
	}
	if r.status.fault != fault {
		t.Error("status reporter did not receive the fault")
	}

	// No further instructions execute once halted.
	if err := r.vm.Cycle(r.io()); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("halted cycle err = %v", err)
	}
	if r.vm.PC() != 0x202 || r.vm.Register(0) != 1 {
		t.Errorf("halted machine kept executing: PC = 0x%04x V0 = %d", r.vm.PC(), r.vm.Register(0))
	}
}

func TestResetClearsFault(t *testing.T) {
	r := newTestRig(t, 0x00EE)
	if err := r.vm.Cycle(r.io()); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}

	r.vm.Reset()

	if r.vm.State() != AwaitingTrigger || r.vm.Fault() != nil {
		t.Errorf("after reset state = %v fault = %v", r.vm.State(), r.vm.Fault())
	}
	if r.vm.Memory().Word(ProgramStart) != 0x00EE {
		t.Error("program not restored by reset")
	}
}

func TestRebootReportsState(t *testing.T) {
	r := newTestRig(t, 0x00EE)
	if err := r.vm.Cycle(r.io()); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}

	r.vm.Reboot(r.io())

	if r.vm.State() != AwaitingTrigger {
		t.Fatalf("state = %v, want %v", r.vm.State(), AwaitingTrigger)
	}
	want := []State{Halted, AwaitingTrigger}
	if len(r.status.states) != len(want) || r.status.states[0] != want[0] || r.status.states[1] != want[1] {
		t.Errorf("status reports = %v, want %v", r.status.states, want)
	}
	if r.status.fault != nil {
		t.Errorf("fault still reported after reboot: %v", r.status.fault)
	}

	// Rebooting an idle machine reports nothing new.
	r.vm.Reboot(r.io())
	if len(r.status.states) != len(want) {
		t.Errorf("status reports = %v after idle reboot", r.status.states)
	}
}

func TestReceivedProgramStartsOnKeyA(t *testing.T) {
	program := []byte{0x60, 0x05, 0x70, 0x03}
	frame, err := loader.Encode(program)
	if err != nil {
		t.Fatal(err)
	}

	l := loader.New(loader.DefaultCapacity)
	for _, b := range frame {
		if err := l.Feed(b); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	if !l.Ready() {
		t.Fatal("loader not ready after a complete frame")
	}

	machine := New(WithClock(0))
	if err := machine.Load(l.Program()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	keypad := &fakeKeypad{keys: KeyA.Mask()}
	io := IO{Display: &fakeDisplay{}, Keypad: keypad}
	for i := 0; i < 3; i++ {
		if err := machine.Cycle(io); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if machine.State() != Running {
		t.Fatalf("state = %v, want %v", machine.State(), Running)
	}
	if machine.Register(0) != 8 || machine.PC() != 0x204 {
		t.Errorf("V0 = %d PC = 0x%04x, want 8 / 0x0204", machine.Register(0), machine.PC())
	}
}

func TestBuzzerFollowsSoundTimer(t *testing.T) {
	r := newTestRig(t, 0x6002, 0xF018, 0x1204)
	buzzer := &fakeBuzzer{}
	io := r.io()
	io.Buzzer = buzzer

	for i := 0; i < 2; i++ {
		if err := r.vm.Cycle(io); err != nil {
			t.Fatal(err)
		}
	}
	r.vm.Timers().Tick()
	r.vm.Timers().Tick()
	if err := r.vm.Cycle(io); err != nil {
		t.Fatal(err)
	}

	want := []bool{true, false}
	if len(buzzer.toggles) != len(want) {
		t.Fatalf("buzzer toggles = %v, want %v", buzzer.toggles, want)
	}
	for i := range want {
		if buzzer.toggles[i] != want[i] {
			t.Fatalf("buzzer toggles = %v, want %v", buzzer.toggles, want)
		}
	}
}

func TestRunReturnsFault(t *testing.T) {
	machine := New(WithClock(0))
	if err := machine.Load([]byte{0x00, 0xEE}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := machine.Run(ctx, IO{Display: &fakeDisplay{}, Keypad: &fakeKeypad{keys: KeyA.Mask()}})
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("Run err = %v, want ErrStackUnderflow", err)
	}
	if machine.State() != Halted {
		t.Errorf("state = %v, want %v", machine.State(), Halted)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	machine := New(WithClock(1000))
	// 1200: jump to self
	if err := machine.Load([]byte{0x12, 0x00}); err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop")
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(stop) })

	err := machine.Run(ctx, IO{Display: &fakeDisplay{}, Keypad: &fakeKeypad{keys: KeyA.Mask()}})
	if !errors.Is(err, stop) {
		t.Fatalf("Run err = %v, want cancel cause", err)
	}
}

func TestRunWithoutProgram(t *testing.T) {
	err := New().Run(context.Background(), IO{Display: &fakeDisplay{}, Keypad: &fakeKeypad{}})
	if !errors.Is(err, ErrNoProgram) {
		t.Fatalf("err = %v, want ErrNoProgram", err)
	}
}

func TestSnapshot(t *testing.T) {
	r := newTestRig(t, 0x6A42, 0xA123, 0x2300)
	r.cycle(t, 3)

	snap := r.vm.Snapshot()
	if snap.Registers[0xA] != 0x42 || snap.Index != 0x123 || snap.SP != 1 || snap.PC != 0x300 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Stack[0] != 0x204 {
		t.Errorf("stack[0] = 0x%04x, want 0x0204", snap.Stack[0])
	}
	if snap.State != Running {
		t.Errorf("snapshot state = %v", snap.State)
	}
}

func BenchmarkCycle(b *testing.B) {
	// Draw the glyph for V0 and count V0 up forever.
	program := []byte{
		0xF0, 0x29, // ld f, v0
		0xD1, 0x25, // drw v1, v2, 5
		0x70, 0x01, // add v0, 1
		0x12, 0x00, // jp 0x200
	}
	machine := New(WithClock(0))
	if err := machine.Load(program); err != nil {
		b.Fatal(err)
	}
	machine.state = Running
	io := IO{Display: &fakeDisplay{}, Keypad: &fakeKeypad{}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := machine.Cycle(io); err != nil {
			b.Fatal(err)
		}
	}
}
