package gecko

import (
	"context"
	"errors"

	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/danmuck/geckoctl/internal/protocol/cheat"
)

// InvalidCheatID is returned alongside every AddCheat/SendCheat failure.
const InvalidCheatID int32 = -1

// SendCheat parses text and adds it to the agent. Empty or malformed text
// fails before anything is written to the wire.
func (s *Session) SendCheat(ctx context.Context, text string) (int32, error) {
	e, err := cheat.Parse(text)
	if err != nil {
		if errors.Is(err, cheat.ErrTooManyPairs) {
			return InvalidCheatID, failure(KindStreamSizeInvalid, "add_cheat", err)
		}
		return InvalidCheatID, err
	}
	return s.AddCheat(ctx, e)
}

// AddCheat sends e and returns the id the agent assigned.
func (s *Session) AddCheat(ctx context.Context, e cheat.Entry) (int32, error) {
	const op = "add_cheat"
	if len(e.Pairs) == 0 {
		return InvalidCheatID, cheat.ErrEmpty
	}
	if len(e.Pairs) > cheat.MaxPairs {
		return InvalidCheatID, failuref(KindStreamSizeInvalid, op, "%d pairs, limit %d", len(e.Pairs), cheat.MaxPairs)
	}

	id := InvalidCheatID
	err := s.do(ctx, op, func() error {
		if err := s.command(protocol.CmdAddCheat); err != nil {
			return failure(KindCommandSend, op, err)
		}
		if err := s.writeWords(e.Size()); err != nil {
			return failure(KindWriteData, op, err)
		}
		if err := s.writeWords(e.Words()...); err != nil {
			return failure(KindWriteData, op, err)
		}
		name := []byte(e.Name)
		if err := s.writeWords(uint32(len(name))); err != nil {
			return failure(KindWriteData, op, err)
		}
		if len(name) > 0 {
			if err := s.writeRaw(name); err != nil {
				return failure(KindWriteData, op, err)
			}
		}
		var reply [4]byte
		if err := s.readExact(reply[:]); err != nil {
			return failure(KindReadData, op, err)
		}
		id = int32(s.codec.Word(reply[:]))
		return nil
	})
	if err != nil {
		return InvalidCheatID, err
	}
	s.Logger().Debug().Int32("id", id).Str("name", e.Name).Int("pairs", len(e.Pairs)).Msg("gecko.Session cheat added")
	return id, nil
}

func (s *Session) RemoveCheat(ctx context.Context, id int32) error {
	return s.simple(ctx, protocol.CmdDeleteCheat, KindWriteData, uint32(id))
}

func (s *Session) EnableCheat(ctx context.Context, id int32) error {
	return s.simple(ctx, protocol.CmdEnableCheat, KindWriteData, uint32(id))
}

func (s *Session) DisableCheat(ctx context.Context, id int32) error {
	return s.simple(ctx, protocol.CmdDisableCheat, KindWriteData, uint32(id))
}

// ListCheats only issues the request; the reply is not decoded here.
func (s *Session) ListCheats(ctx context.Context) error {
	return s.simple(ctx, protocol.CmdListCheats, KindCommandSend)
}
