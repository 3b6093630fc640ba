package gecko

import (
	"context"

	"github.com/danmuck/geckoctl/internal/protocol"
)

// Write8 pokes one byte.
func (s *Session) Write8(ctx context.Context, addr uint32, v uint8) error {
	return s.simple(ctx, protocol.CmdPoke08, KindCommandSend, addr, uint32(v))
}

// Write16 pokes a halfword at addr aligned down to 2.
func (s *Session) Write16(ctx context.Context, addr uint32, v uint16) error {
	return s.simple(ctx, protocol.CmdPoke16, KindCommandSend, addr&^1, uint32(v))
}

// Write32 pokes a word at addr aligned down to 4.
func (s *Session) Write32(ctx context.Context, addr uint32, v uint32) error {
	return s.simple(ctx, protocol.CmdPokeMem, KindCommandSend, addr&^3, v)
}

// readWord dumps the aligned word holding addr without progress reporting.
func (s *Session) readWord(ctx context.Context, addr uint32) (*Window, error) {
	aligned := addr &^ 3
	win, err := NewWindow(aligned, aligned+4)
	if err != nil {
		return nil, err
	}
	err = s.do(ctx, protocol.CmdReadMem.String(), func() error {
		res, err := s.dump(ctx, aligned, aligned+4, windowSink{win}, nil)
		if err != nil {
			return err
		}
		if res.Transferred != 4 {
			return failuref(KindReadData, "readmem", "read %d of 4 bytes", res.Transferred)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return win, nil
}

// Read32 reads the word at addr aligned down to 4.
func (s *Session) Read32(ctx context.Context, addr uint32) (uint32, error) {
	win, err := s.readWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	return win.ReadAddress32(win.Start, s.codec), nil
}

// Peek is Read32; it never reports progress.
func (s *Session) Peek(ctx context.Context, addr uint32) (uint32, error) {
	return s.Read32(ctx, addr)
}

// Read16 reads the halfword at offset addr&2 of the aligned word. Odd
// addresses round down to the enclosing halfword.
func (s *Session) Read16(ctx context.Context, addr uint32) (uint16, error) {
	win, err := s.readWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	return uint16(win.ReadAddress(win.Start+(addr&2), 2, s.codec)), nil
}

func (s *Session) Read8(ctx context.Context, addr uint32) (uint8, error) {
	win, err := s.readWord(ctx, addr)
	if err != nil {
		return 0, err
	}
	return uint8(win.ReadAddress(addr, 1, s.codec)), nil
}
