package gecko

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/geckoctl/internal/protocol"
)

// Window is a fixed-capacity capture of remote memory [Start, End).
//
// Only the Dump filling it writes to the buffer. ReadCompletedAddress may be
// polled from other goroutines while the Dump runs.
type Window struct {
	Start uint32
	End   uint32

	mem       []byte
	completed atomic.Uint32
}

func NewWindow(start, end uint32) (*Window, error) {
	if end < start {
		return nil, failuref(KindInvalidAddress, "window", "end 0x%08X below start 0x%08X", end, start)
	}
	w := &Window{Start: start, End: end, mem: make([]byte, end-start)}
	w.completed.Store(start)
	return w, nil
}

func (w *Window) Len() uint32 {
	return w.End - w.Start
}

// ReadCompletedAddress is the high-water mark: every address below it has
// been filled.
func (w *Window) ReadCompletedAddress() uint32 {
	return w.completed.Load()
}

// Bytes returns the backing buffer. Only read it after the Dump returns.
func (w *Window) Bytes() []byte {
	return w.mem
}

func (w *Window) put(offset uint32, p []byte) error {
	if uint64(offset)+uint64(len(p)) > uint64(len(w.mem)) {
		return fmt.Errorf("gecko: window overflow: offset=%d len=%d cap=%d", offset, len(p), len(w.mem))
	}
	copy(w.mem[offset:], p)
	w.completed.Store(w.Start + offset + uint32(len(p)))
	return nil
}

// ReadAddress reads a 1, 2 or 4 byte value at addr decoded with codec.
// Addresses outside the window read as 0.
func (w *Window) ReadAddress(addr uint32, size int, codec protocol.Codec) uint32 {
	if size != 1 && size != 2 && size != 4 {
		return 0
	}
	if addr < w.Start || uint64(addr)+uint64(size) > uint64(w.End) {
		return 0
	}
	b := w.mem[addr-w.Start:]
	switch size {
	case 4:
		return codec.Word(b)
	case 2:
		return uint32(codec.Half(b))
	default:
		return uint32(b[0])
	}
}

func (w *Window) ReadAddress32(addr uint32, codec protocol.Codec) uint32 {
	return w.ReadAddress(addr, 4, codec)
}

// WriteTo writes the captured bytes up to the high-water mark.
func (w *Window) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.mem[:w.ReadCompletedAddress()-w.Start])
	return int64(n), err
}
