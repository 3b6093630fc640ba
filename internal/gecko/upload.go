package gecko

import (
	"context"
	"io"

	"github.com/danmuck/geckoctl/internal/observability"
	"github.com/danmuck/geckoctl/internal/protocol"
)

// Upload writes end-start bytes from r to remote memory at start.
//
// There is no cancellation point once the first chunk is sent; ctx is only
// checked while waiting for the session.
func (s *Session) Upload(ctx context.Context, start, end uint32, r io.Reader, progress ProgressFunc) error {
	const op = "upload"
	if end < start {
		return failuref(KindInvalidAddress, op, "end 0x%08X below start 0x%08X", end, start)
	}
	length := end - start
	if length == 0 {
		return nil
	}

	return s.do(ctx, op, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.command(protocol.CmdUpload); err != nil {
			return failure(KindCommandSend, op, err)
		}
		if err := s.writeWords(start, end); err != nil {
			return failure(KindCommandSend, op, err)
		}

		chunks := protocol.ChunkCount(length)
		buf := make([]byte, protocol.PacketSize)
		var transferred, chunk uint32
		for transferred < length {
			progress.emit(Progress{
				Address:     start + transferred,
				Chunk:       chunk,
				Chunks:      chunks,
				Transferred: transferred,
				Length:      length,
				OK:          true,
			})

			n := min(length-transferred, uint32(protocol.PacketSize))
			if _, err := io.ReadFull(r, buf[:n]); err != nil {
				// The agent is mid-transfer and would read the next command
				// as payload.
				s.disconnect("upload source")
				return &Error{Kind: KindWriteData, Op: op, Msg: "source", Err: err}
			}
			if err := s.writeRaw(buf[:n]); err != nil {
				return failure(KindWriteData, op, err)
			}
			observability.RecordChunk("write", "literal", int(n))
			chunk++
			transferred += n
		}

		var reply [1]byte
		if err := s.readExact(reply[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		if reply[0] != protocol.ACK {
			return failuref(KindInvalidReply, op, "final reply 0x%02X", reply[0])
		}

		progress.emit(Progress{
			Address:     start + transferred,
			Chunk:       chunk,
			Chunks:      chunks,
			Transferred: transferred,
			Length:      length,
			OK:          true,
		})
		return nil
	})
}
