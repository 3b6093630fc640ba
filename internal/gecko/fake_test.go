package gecko

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/geckoctl/internal/protocol"
)

var errInjected = errors.New("injected fault")

// scriptTransport replays canned agent bytes and records client writes.
type scriptTransport struct {
	mu         sync.Mutex
	in         bytes.Buffer
	out        bytes.Buffer
	reads      int
	writes     int
	connects   int
	closes     int
	connectErr error
	// failReadAt / failWriteAt inject an I/O fault on the Nth call (1-based).
	failReadAt  int
	failWriteAt int
	// shortReadAt returns one byte less than asked, without an error.
	shortReadAt int
}

func (s *scriptTransport) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return s.connectErr
}

func (s *scriptTransport) ReadFull(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.reads == s.failReadAt {
		return 0, errInjected
	}
	if s.reads == s.shortReadAt {
		n, _ := s.in.Read(p[:len(p)-1])
		return n, nil
	}
	n, _ := s.in.Read(p)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (s *scriptTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writes == s.failWriteAt {
		return 0, errInjected
	}
	return s.out.Write(p)
}

func (s *scriptTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptTransport) feed(p ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range p {
		s.in.Write(b)
	}
}

func (s *scriptTransport) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out.Bytes()...)
}

func (s *scriptTransport) readCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *scriptTransport) unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Len()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.SettleDelay = 0
	cfg.StatusDelay = 0
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond}
	return cfg
}

// connectedScript returns a connected session over a scripted transport.
func connectedScript(t *testing.T) (*Session, *scriptTransport) {
	t.Helper()
	tr := &scriptTransport{}
	s := New(testConfig(), WithTransport(tr))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s, tr
}

func le(words ...uint32) []byte {
	return protocol.LittleEndian.EncodeWords(words...)
}

func literalChunk(data []byte) []byte {
	out := []byte{protocol.ACK, protocol.BlockNonZero}
	out = append(out, le(uint32(len(data)))...)
	return append(out, data...)
}

func zeroChunk() []byte {
	return []byte{protocol.ACK, protocol.BlockZero}
}

func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i*7)
	}
	return out
}
