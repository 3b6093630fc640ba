package gecko

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/danmuck/geckoctl/internal/protocol"
)

// Status is the agent's run state.
type Status int

const (
	StatusRunning Status = iota
	StatusPaused
	StatusBreakpoint
	StatusLoader
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusBreakpoint:
		return "breakpoint"
	case StatusLoader:
		return "loader"
	default:
		return "unknown"
	}
}

// Region is one entry of the agent's memory map.
type Region struct {
	Start uint32
	Size  uint32
	Type  uint32
}

// End is the exclusive end address. A region reaching the top of the 32-bit
// address space is clamped to 0xFFFFFFFF, dropping its final byte.
func (r Region) End() uint32 {
	if r.Clamped() {
		return math.MaxUint32
	}
	return r.Start + r.Size
}

// Clamped reports whether Start+Size overflows 32 bits.
func (r Region) Clamped() bool {
	return uint64(r.Start)+uint64(r.Size) > math.MaxUint32
}

// maxLogSize bounds the log blob the agent may announce.
const maxLogSize = 16 << 20

// Status waits the configured debounce delay, then asks for the run state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	const op = "status"
	st := StatusUnknown
	err := s.do(ctx, op, func() error {
		s.stateMu.Lock()
		delay := s.cfg.StatusDelay
		s.stateMu.Unlock()
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := s.command(protocol.CmdStatus); err != nil {
			return failure(KindCommandSend, op, err)
		}
		var reply [1]byte
		if err := s.readExact(reply[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		if reply[0] < byte(StatusUnknown) {
			st = Status(reply[0])
		}
		return nil
	})
	return st, err
}

func (s *Session) queryWord(ctx context.Context, op protocol.Opcode) (uint32, error) {
	var v uint32
	err := s.do(ctx, op.String(), func() error {
		if err := s.command(op); err != nil {
			return failure(KindCommandSend, op.String(), err)
		}
		var reply [4]byte
		if err := s.readExact(reply[:]); err != nil {
			return failure(KindReadData, op.String(), err)
		}
		v = s.codec.Word(reply[:])
		return nil
	})
	return v, err
}

func (s *Session) VersionRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdVersion)
}

func (s *Session) OSVersionRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdOSVersion)
}

func (s *Session) KernelVersionRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdKernVersion)
}

func (s *Session) TitleTypeRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdTitleType)
}

func (s *Session) TitleIDRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdTitleID)
}

func (s *Session) GamePIDRequest(ctx context.Context) (uint32, error) {
	return s.queryWord(ctx, protocol.CmdGamePID)
}

// GameNameRequest reads the fixed 8-byte name; NUL padding is trimmed.
func (s *Session) GameNameRequest(ctx context.Context) (string, error) {
	const op = "game_name"
	var name string
	err := s.do(ctx, op, func() error {
		if err := s.command(protocol.CmdGameName); err != nil {
			return failure(KindCommandSend, op, err)
		}
		var reply [8]byte
		if err := s.readExact(reply[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		name = strings.TrimRight(string(reply[:]), "\x00")
		return nil
	})
	return name, err
}

// MemoryRegionRequest lists the agent's memory map. It returns a nil slice,
// not an empty one, when the agent reports no regions.
func (s *Session) MemoryRegionRequest(ctx context.Context) ([]Region, error) {
	const op = "list_region"
	var regions []Region
	err := s.do(ctx, op, func() error {
		if err := s.command(protocol.CmdListRegion); err != nil {
			return failure(KindCommandSend, op, err)
		}
		var count [1]byte
		if err := s.readExact(count[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		if count[0] == 0 {
			return nil
		}
		buf := make([]byte, int(count[0])*12)
		if err := s.readExact(buf); err != nil {
			return failure(KindReadData, op, err)
		}
		regions = make([]Region, 0, count[0])
		for i := 0; i < len(buf); i += 12 {
			regions = append(regions, Region{
				Start: s.codec.Word(buf[i:]),
				Size:  s.codec.Word(buf[i+4:]),
				Type:  s.codec.Word(buf[i+8:]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regions, nil
}

// LogRequest fetches and drains the agent's log buffer.
func (s *Session) LogRequest(ctx context.Context) (string, error) {
	const op = "fetch_log"
	var text string
	err := s.do(ctx, op, func() error {
		if err := s.command(protocol.CmdFetchLog); err != nil {
			return failure(KindCommandSend, op, err)
		}
		var size [4]byte
		if err := s.readExact(size[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		n := s.codec.Word(size[:])
		if n == 0 {
			return nil
		}
		if n > maxLogSize {
			// The announced bytes are never read, so the stream is out of sync.
			s.disconnect("log size")
			return failuref(KindStreamSizeInvalid, op, "log of %d bytes exceeds %d", n, maxLogSize)
		}
		buf := make([]byte, n)
		if err := s.readExact(buf); err != nil {
			return failure(KindReadData, op, err)
		}
		text = string(buf)
		return nil
	})
	return text, err
}

func (s *Session) PatchWireless(ctx context.Context) error {
	return s.simple(ctx, protocol.CmdPatchWireless, KindCommandSend)
}
