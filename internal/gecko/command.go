package gecko

import (
	"context"
	"fmt"

	"github.com/danmuck/geckoctl/internal/protocol"
)

// The primitives below assume the caller holds the wire lock. An I/O fault
// disconnects the session and returns an error wrapping ErrFatal; a short
// transfer returns ErrShortTransfer and leaves the session connected.

func (s *Session) command(op protocol.Opcode) error {
	return s.writeRaw([]byte{byte(op)})
}

func (s *Session) writeWords(words ...uint32) error {
	return s.writeRaw(s.codec.EncodeWords(words...))
}

func (s *Session) writeRaw(p []byte) error {
	tr := s.transport()
	if !s.connected.Load() || tr == nil {
		return fmt.Errorf("%w: %w", ErrFatal, ErrNotConnected)
	}
	n, err := tr.Write(p)
	if err != nil {
		s.fault(err)
		return fmt.Errorf("%w: write: %w", ErrFatal, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortTransfer, n, len(p))
	}
	return nil
}

func (s *Session) readExact(p []byte) error {
	tr := s.transport()
	if !s.connected.Load() || tr == nil {
		return fmt.Errorf("%w: %w", ErrFatal, ErrNotConnected)
	}
	n, err := tr.ReadFull(p)
	if err != nil {
		s.fault(err)
		return fmt.Errorf("%w: read: %w", ErrFatal, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: read %d of %d bytes", ErrShortTransfer, n, len(p))
	}
	return nil
}

// sendFail tells the agent to abandon the current transfer. Its own failure
// is ignored; the caller is already reporting one.
func (s *Session) sendFail() {
	_ = s.writeRaw([]byte{protocol.FAIL})
}

func (s *Session) fault(err error) {
	s.Logger().Warn().Err(err).Msg("gecko.Session transport fault")
	s.disconnect("fault")
}

// RawCommand sends one opcode byte with no arguments and reads nothing back.
func (s *Session) RawCommand(ctx context.Context, op protocol.Opcode) error {
	return s.do(ctx, op.String(), func() error {
		if err := s.command(op); err != nil {
			return failure(KindCommandSend, op.String(), err)
		}
		return nil
	})
}

// SendFail writes a lone FAIL byte, which unsticks an agent handler waiting
// on a transfer acknowledgement.
func (s *Session) SendFail(ctx context.Context) error {
	return s.do(ctx, "send_fail", func() error {
		if err := s.writeRaw([]byte{protocol.FAIL}); err != nil {
			return failure(KindCommandSend, "send_fail", err)
		}
		return nil
	})
}

// simple sends op followed by args and expects no reply payload.
func (s *Session) simple(ctx context.Context, op protocol.Opcode, argKind Kind, args ...uint32) error {
	return s.do(ctx, op.String(), func() error {
		if err := s.command(op); err != nil {
			return failure(KindCommandSend, op.String(), err)
		}
		if len(args) == 0 {
			return nil
		}
		if err := s.writeWords(args...); err != nil {
			return failure(argKind, op.String(), err)
		}
		return nil
	})
}
