package gecko

import (
	"bytes"
	"context"
	"testing"

	"github.com/danmuck/geckoctl/internal/protocol"
	"github.com/danmuck/geckoctl/internal/testutil/testlog"
)

func TestWriteAlignsAddress(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	ctx := context.Background()
	if err := s.Write8(ctx, 0x10000003, 0xAB); err != nil {
		t.Fatalf("write8: %v", err)
	}
	if err := s.Write16(ctx, 0x10000003, 0xBEEF); err != nil {
		t.Fatalf("write16: %v", err)
	}
	if err := s.Write32(ctx, 0x10000007, 0xCAFEBABE); err != nil {
		t.Fatalf("write32: %v", err)
	}
	var want []byte
	want = append(append(want, 0x01), le(0x10000003, 0xAB)...)
	want = append(append(want, 0x02), le(0x10000002, 0xBEEF)...)
	want = append(append(want, 0x03), le(0x10000004, 0xCAFEBABE)...)
	if got := tr.written(); !bytes.Equal(got, want) {
		t.Fatalf("unexpected wire bytes: % x", got)
	}
}

func TestWriteDefaultsToLittleEndian(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	if err := s.Write32(context.Background(), 0x10000000, 1); err != nil {
		t.Fatalf("write32: %v", err)
	}
	want := []byte{0x03, 0x00, 0x00, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00}
	if got := tr.written(); !bytes.Equal(got, want) {
		t.Fatalf("unexpected wire bytes: % x", got)
	}
}

func TestReadWidths(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	ctx := context.Background()
	word := []byte{0x11, 0x22, 0x33, 0x44}
	tr.feed(literalChunk(word), literalChunk(word), literalChunk(word), literalChunk(word))

	if v, err := s.Read32(ctx, 0x10000001); err != nil || v != 0x44332211 {
		t.Fatalf("read32: v=0x%X err=%v", v, err)
	}
	if v, err := s.Read16(ctx, 0x10000002); err != nil || v != 0x4433 {
		t.Fatalf("read16: v=0x%X err=%v", v, err)
	}
	if v, err := s.Read8(ctx, 0x10000001); err != nil || v != 0x22 {
		t.Fatalf("read8: v=0x%X err=%v", v, err)
	}
	if v, err := s.Peek(ctx, 0x10000000); err != nil || v != 0x44332211 {
		t.Fatalf("peek: v=0x%X err=%v", v, err)
	}
	got := tr.written()
	want := append([]byte{0x04}, le(0x10000000, 0x10000004)...)
	want = append(want, protocol.ACK)
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("reads must request the aligned word: % x", got[:len(want)])
	}
}

// Odd addresses round down to the enclosing aligned halfword.
func TestRead16OddAddress(t *testing.T) {
	testlog.Start(t)
	s, tr := connectedScript(t)
	ctx := context.Background()
	word := []byte{0x11, 0x22, 0x33, 0x44}
	tr.feed(literalChunk(word), literalChunk(word))

	if v, err := s.Read16(ctx, 0x10000001); err != nil || v != 0x2211 {
		t.Fatalf("read16 +1: v=0x%X err=%v", v, err)
	}
	if v, err := s.Read16(ctx, 0x10000003); err != nil || v != 0x4433 {
		t.Fatalf("read16 +3: v=0x%X err=%v", v, err)
	}
}

func TestReadBigEndianCodec(t *testing.T) {
	testlog.Start(t)
	tr := &scriptTransport{}
	cfg := testConfig()
	cfg.ByteOrder = protocol.BigEndian
	s := New(cfg, WithTransport(tr))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	tr.feed([]byte{protocol.ACK, protocol.BlockNonZero, 0, 0, 0, 4, 0x11, 0x22, 0x33, 0x44})
	if v, err := s.Read32(context.Background(), 0x20); err != nil || v != 0x11223344 {
		t.Fatalf("read32: v=0x%X err=%v", v, err)
	}
	want := []byte{0x04, 0, 0, 0, 0x20, 0, 0, 0, 0x24, protocol.ACK}
	if got := tr.written(); !bytes.Equal(got, want) {
		t.Fatalf("unexpected wire bytes: % x", got)
	}
}
