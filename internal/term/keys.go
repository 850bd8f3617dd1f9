package term

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/kapitanov/chip8board/internal/vm"
)

// DefaultHold is how long a typed key reads as pressed.
const DefaultHold = 150 * time.Millisecond

// KeyReader is a vm.Keypad fed by hex digits typed on a reader. A line
// buffered terminal has no key-up events, so every typed key is held
// down for a fixed time.
type KeyReader struct {
	hold time.Duration
	now  func() time.Time

	mu       sync.Mutex
	deadline [vm.KeyCount]time.Time
}

var _ vm.Keypad = (*KeyReader)(nil)

func NewKeyReader(hold time.Duration) *KeyReader {
	if hold <= 0 {
		hold = DefaultHold
	}

	return &KeyReader{
		hold: hold,
		now:  time.Now,
	}
}

// Listen reads keys from r until it fails or hits EOF.
func (k *KeyReader) Listen(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		c, _, err := br.ReadRune()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("key reader stopped", "err", err)
			}
			return
		}

		k.Press(c)
	}
}

// Press marks the key for a hex digit as down. Other runes are ignored.
func (k *KeyReader) Press(c rune) {
	v, err := strconv.ParseUint(string(c), 16, 8)
	if err != nil {
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.deadline[v] = k.now().Add(k.hold)
}

func (k *KeyReader) Poll() uint16 {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()

	var keys uint16
	for i, deadline := range k.deadline {
		if now.Before(deadline) {
			keys |= vm.Key(i).Mask()
		}
	}
	return keys
}
