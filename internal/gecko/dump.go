package gecko

import (
	"context"
	"fmt"
	"io"

	"github.com/danmuck/geckoctl/internal/observability"
	"github.com/danmuck/geckoctl/internal/protocol"
)

// DumpResult summarizes a finished or cancelled Dump.
type DumpResult struct {
	Transferred uint32
	Chunks      uint32
	Cancelled   bool
}

type sink interface {
	put(offset uint32, p []byte) error
}

type writerSink struct {
	w io.Writer
}

func (s writerSink) put(_ uint32, p []byte) error {
	_, err := s.w.Write(p)
	return err
}

// Dump reads [start, end) into w. Pass an io.MultiWriter to fan out to
// several streams.
//
// CancelDump or cancelling ctx stops the transfer after the current chunk;
// the result then has Cancelled set, err is nil, and w keeps what arrived.
func (s *Session) Dump(ctx context.Context, start, end uint32, w io.Writer, progress ProgressFunc) (DumpResult, error) {
	if end < start {
		return DumpResult{}, failuref(KindInvalidAddress, "readmem", "end 0x%08X below start 0x%08X", end, start)
	}
	var res DumpResult
	err := s.do(ctx, protocol.CmdReadMem.String(), func() error {
		var err error
		res, err = s.dump(ctx, start, end, writerSink{w: w}, progress)
		return err
	})
	return res, err
}

// DumpWindow fills win, advancing its high-water mark chunk by chunk.
func (s *Session) DumpWindow(ctx context.Context, win *Window, progress ProgressFunc) (DumpResult, error) {
	var res DumpResult
	err := s.do(ctx, protocol.CmdReadMem.String(), func() error {
		var err error
		res, err = s.dump(ctx, win.Start, win.End, windowSink{win}, progress)
		return err
	})
	return res, err
}

type windowSink struct {
	w *Window
}

func (s windowSink) put(offset uint32, p []byte) error {
	return s.w.put(offset, p)
}

func (s *Session) dump(ctx context.Context, start, end uint32, out sink, progress ProgressFunc) (DumpResult, error) {
	const op = "readmem"
	var res DumpResult

	length := end - start
	if length == 0 {
		return res, nil
	}

	if err := s.command(protocol.CmdReadMem); err != nil {
		return res, failure(KindCommandSend, op, err)
	}
	if err := s.writeWords(start, end); err != nil {
		return res, failure(KindCommandSend, op, err)
	}

	s.cancel.Store(false)
	logger := s.Logger()
	chunks := protocol.ChunkCount(length)
	buf := make([]byte, protocol.PacketSize)

	for res.Transferred < length {
		progress.emit(Progress{
			Address:     start + res.Transferred,
			Chunk:       res.Chunks,
			Chunks:      chunks,
			Transferred: res.Transferred,
			Length:      length,
			OK:          true,
			Read:        true,
		})

		if err := s.readExact(buf[:1]); err != nil {
			s.sendFail()
			return res, failure(KindReadData, op, err)
		}
		switch buf[0] {
		case protocol.FAIL:
			return res, failuref(KindInvalidAddress, op, "agent rejected range 0x%08X-0x%08X", start, end)
		case protocol.RETRY:
			s.sendFail()
			return res, failuref(KindReadData, op, "agent asked for retry at 0x%08X", start+res.Transferred)
		case protocol.ACK:
		default:
			s.sendFail()
			return res, failuref(KindReadData, op, "unexpected chunk status 0x%02X", buf[0])
		}

		if err := s.readExact(buf[:1]); err != nil {
			s.sendFail()
			return res, failure(KindReadData, op, err)
		}

		n := min(length-res.Transferred, uint32(protocol.PacketSize))
		block := "zero"
		if buf[0] == protocol.BlockZero {
			clear(buf[:n])
		} else {
			block = "literal"
			if err := s.readExact(buf[:4]); err != nil {
				s.sendFail()
				return res, failure(KindReadData, op, err)
			}
			declared := s.codec.Word(buf[:4])
			if declared == 0 || declared > n {
				s.sendFail()
				return res, failuref(KindReadData, op, "chunk length %d outside 1..%d", declared, n)
			}
			n = declared
			if err := s.readExact(buf[:n]); err != nil {
				s.sendFail()
				return res, failure(KindReadData, op, err)
			}
		}

		if err := out.put(res.Transferred, buf[:n]); err != nil {
			s.sendFail()
			return res, fmt.Errorf("gecko: readmem: sink: %w", err)
		}
		res.Transferred += n
		res.Chunks++
		observability.RecordChunk("read", block, int(n))

		cancelled := s.cancel.Load() || ctx.Err() != nil
		reply := []byte{protocol.ACK}
		if cancelled {
			reply = append(reply, protocol.FAIL)
		}
		if err := s.writeRaw(reply); err != nil {
			return res, failure(KindWriteData, op, err)
		}

		progress.emit(Progress{
			Address:     start + res.Transferred,
			Chunk:       res.Chunks,
			Chunks:      chunks,
			Transferred: res.Transferred,
			Length:      length,
			OK:          true,
			Read:        true,
		})
		logger.Trace().Uint32("chunk", res.Chunks).Uint32("of", chunks).Str("block", block).Msg("gecko.Session dump chunk")

		if cancelled {
			res.Cancelled = true
			observability.RecordCancel()
			logger.Info().
				Uint32("transferred", res.Transferred).
				Uint32("length", length).
				Msg("gecko.Session dump cancelled")
			break
		}
	}
	return res, nil
}
