package protocol

import (
	"bytes"
	"testing"

	"github.com/danmuck/geckoctl/internal/testutil/testlog"
)

func TestEncodeWordsBigEndian(t *testing.T) {
	testlog.Start(t)
	got := BigEndian.EncodeWords(0x01020304, 0xAABBCCDD)
	want := []byte{0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}
	if !bytes.Equal(got, want) {
		t.Fatalf("got=% x want=% x", got, want)
	}
	if BigEndian.Word(got[4:]) != 0xAABBCCDD {
		t.Fatalf("word decode mismatch")
	}
}

func TestEncodeWordsLittleEndian(t *testing.T) {
	testlog.Start(t)
	got := LittleEndian.EncodeWords(0x01020304)
	if !bytes.Equal(got, []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Fatalf("got=% x", got)
	}
	if len(LittleEndian.EncodeWords()) != 0 {
		t.Fatalf("expected empty buffer")
	}
}

func TestZeroCodecIsLittleEndian(t *testing.T) {
	testlog.Start(t)
	var c Codec
	if c.String() != "little" {
		t.Fatalf("unexpected default order: %s", c)
	}
	if c.Word([]byte{0, 1, 0, 0}) != 256 {
		t.Fatalf("unexpected decode")
	}
	got := c.EncodeWords(0x10000000, 1)
	want := []byte{0x00, 0x00, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got=% x want=% x", got, want)
	}
}

func TestHalfDecode(t *testing.T) {
	testlog.Start(t)
	b := []byte{0x12, 0x34}
	if LittleEndian.Half(b) != 0x3412 || BigEndian.Half(b) != 0x1234 {
		t.Fatalf("half decode mismatch")
	}
}

func TestSwap(t *testing.T) {
	testlog.Start(t)
	if Swap16(0x1234) != 0x3412 {
		t.Fatalf("swap16")
	}
	if Swap32(0x12345678) != 0x78563412 {
		t.Fatalf("swap32")
	}
	host := HostOrder()
	if host.Swap32(0x12345678) != 0x12345678 || host.Swap16(0x1234) != 0x1234 {
		t.Fatalf("host codec must not swap")
	}
	other := BigEndian
	if host.String() == "big" {
		other = LittleEndian
	}
	if other.Swap32(0x12345678) != 0x78563412 || other.Swap16(0x1234) != 0x3412 {
		t.Fatalf("foreign codec must swap")
	}
}

func TestParseByteOrder(t *testing.T) {
	testlog.Start(t)
	for in, want := range map[string]string{"": "little", "BE": "big", "network": "big", "little": "little", " le ": "little"} {
		c, err := ParseByteOrder(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if c.String() != want {
			t.Fatalf("parse %q: got=%s want=%s", in, c, want)
		}
	}
	if _, err := ParseByteOrder("middle"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestChunkCount(t *testing.T) {
	testlog.Start(t)
	cases := map[uint32]uint32{0: 0, 1: 1, PacketSize: 1, PacketSize + 1: 2, 3 * PacketSize: 3}
	for length, want := range cases {
		if got := ChunkCount(length); got != want {
			t.Fatalf("length=%d got=%d want=%d", length, got, want)
		}
	}
	if CmdReadMem.String() != "readmem" || Opcode(0xEE).String() != "unknown" {
		t.Fatalf("unexpected opcode names")
	}
}
