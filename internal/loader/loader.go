// Package loader receives program images over a serial link.
//
// A frame is a 0xFF start byte, a big-endian 16-bit payload length and
// then the payload itself. The board asks for a program by sending a
// single 0x55 request byte.
package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	StartByte   = 0xFF
	RequestByte = 0x55

	// DefaultCapacity is the size of the board's program buffer.
	DefaultCapacity = 1024

	headerSize = 3
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrEmptyFrame    = errors.New("empty frame")
)

// Header is the fixed part of a frame.
type Header struct {
	Start  uint8
	Length uint16
}

type state uint8

const (
	awaitStart state = iota
	awaitLengthHi
	awaitLengthLo
	awaitPayload
)

// Loader is the receive side state machine. Bytes are pushed in one at
// a time with Feed, the way a UART receive interrupt would.
type Loader struct {
	capacity int

	state   state
	length  int
	staging []byte

	program []byte
	ready   bool
}

func New(capacity int) *Loader {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Loader{
		capacity: capacity,
		staging:  make([]byte, 0, capacity),
	}
}

// Feed advances the state machine by one received byte. A frame whose
// announced length exceeds the capacity is rejected with ErrFrameTooLarge
// and the loader goes back to waiting for a start byte; a previously
// completed program is kept.
func (l *Loader) Feed(b byte) error {
	switch l.state {
	case awaitStart:
		if b == StartByte {
			l.state = awaitLengthHi
		}

	case awaitLengthHi:
		l.length = int(b) << 8
		l.state = awaitLengthLo

	case awaitLengthLo:
		l.length |= int(b)

		switch {
		case l.length > l.capacity:
			length := l.length
			l.restart()
			return fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLarge, length, l.capacity)
		case l.length == 0:
			l.restart()
			return ErrEmptyFrame
		}

		l.staging = l.staging[:0]
		l.state = awaitPayload

	case awaitPayload:
		l.staging = append(l.staging, b)
		if len(l.staging) >= l.length {
			l.program = append(l.program[:0], l.staging...)
			l.ready = true
			l.restart()
		}
	}

	return nil
}

func (l *Loader) restart() {
	l.state = awaitStart
	l.length = 0
	l.staging = l.staging[:0]
}

// Ready reports whether a complete program has been received.
func (l *Loader) Ready() bool {
	return l.ready
}

// Program returns a copy of the last complete program, or nil.
func (l *Loader) Program() []byte {
	if !l.ready {
		return nil
	}
	return append([]byte(nil), l.program...)
}

// Reset drops any partial frame and the completed program.
func (l *Loader) Reset() {
	l.restart()
	l.program = l.program[:0]
	l.ready = false
}

func (l *Loader) Capacity() int {
	return l.capacity
}

// Receive requests a program on rw and feeds the reply into the loader
// until a complete frame has arrived. Rejected frames are logged and
// the loader keeps listening.
func (l *Loader) Receive(ctx context.Context, rw io.ReadWriter) ([]byte, error) {
	if _, err := rw.Write([]byte{RequestByte}); err != nil {
		return nil, errors.Wrap(err, "send program request")
	}
	slog.Info("program requested", "capacity", l.capacity)

	l.ready = false
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			if ferr := l.Feed(b); ferr != nil {
				slog.Warn("frame rejected", "err", ferr)
				continue
			}
			if l.ready {
				slog.Info("program received", "n", len(l.program))
				return l.Program(), nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.Wrap(io.ErrUnexpectedEOF, "read frame")
			}
			return nil, errors.Wrap(err, "read frame")
		}
	}
}

// Encode frames a program for transmission.
func Encode(program []byte) ([]byte, error) {
	if len(program) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(program) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(program))
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(program))
	hdr := Header{Start: StartByte, Length: uint16(len(program))}
	if err := struc.PackWithOrder(&buf, &hdr, binary.BigEndian); err != nil {
		return nil, errors.Wrap(err, "pack frame header")
	}
	buf.Write(program)

	return buf.Bytes(), nil
}

// DecodeHeader reads a frame header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	var hdr Header
	if err := struc.UnpackWithOrder(r, &hdr, binary.BigEndian); err != nil {
		return hdr, errors.Wrap(err, "unpack frame header")
	}
	if hdr.Start != StartByte {
		return hdr, fmt.Errorf("bad start byte 0x%02x", hdr.Start)
	}

	return hdr, nil
}

// ReadFrame reads one whole frame from r, such as a frame Send wrote to
// a file, and makes its payload the completed program.
func (l *Loader) ReadFrame(r io.Reader) ([]byte, error) {
	hdr, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}

	switch {
	case hdr.Length == 0:
		return nil, ErrEmptyFrame
	case int(hdr.Length) > l.capacity:
		return nil, fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLarge, hdr.Length, l.capacity)
	}

	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "read frame payload")
	}

	l.restart()
	l.program = append(l.program[:0], payload...)
	l.ready = true
	return payload, nil
}

// Send writes a framed program to w.
func Send(w io.Writer, program []byte) error {
	frame, err := Encode(program)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	slog.Info("program sent", "n", len(program), "frame", len(frame))
	return nil
}
