package cheat

import (
	"errors"
	"testing"

	"github.com/danmuck/geckoctl/internal/testutil/testlog"
)

func TestParseNamedEntry(t *testing.T) {
	testlog.Start(t)
	e, err := Parse("[Test]\n00000000 00000001\n00000004 00000002")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Name != "Test" {
		t.Fatalf("unexpected name: %q", e.Name)
	}
	want := []Pair{{Address: 0, Value: 1}, {Address: 4, Value: 2}}
	if len(e.Pairs) != len(want) {
		t.Fatalf("unexpected pairs: %+v", e.Pairs)
	}
	for i := range want {
		if e.Pairs[i] != want[i] {
			t.Fatalf("pair %d: got=%+v want=%+v", i, e.Pairs[i], want[i])
		}
	}
	if e.Size() != 16 {
		t.Fatalf("unexpected size: %d", e.Size())
	}
	words := e.Words()
	if len(words) != 4 || words[0] != 0 || words[1] != 1 || words[2] != 4 || words[3] != 2 {
		t.Fatalf("unexpected words: %v", words)
	}
}

func TestParseCRLFAndBlankLines(t *testing.T) {
	testlog.Start(t)
	e, err := Parse("\r\n10A3B2C0 000003e7\r\n\r\n  10A3B2C4   FFFFFFFF  \r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if e.Name != "" {
		t.Fatalf("unexpected name: %q", e.Name)
	}
	if len(e.Pairs) != 2 || e.Pairs[0] != (Pair{0x10A3B2C0, 0x3E7}) || e.Pairs[1] != (Pair{0x10A3B2C4, 0xFFFFFFFF}) {
		t.Fatalf("unexpected pairs: %+v", e.Pairs)
	}
}

func TestParseEmptyDescription(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "   ", "\n\t\r\n", "[Only a name]"} {
		if _, err := Parse(in); !errors.Is(err, ErrEmpty) {
			t.Fatalf("input %q: expected ErrEmpty, got %v", in, err)
		}
	}
}

func TestParseMalformedLines(t *testing.T) {
	testlog.Start(t)
	cases := []string{
		"00000000",
		"00000000 00000001 00000002",
		"0000000 00000001",
		"0000000G 00000001",
		"00000000 100000000",
	}
	for _, in := range cases {
		if _, err := Parse(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestParsePairLimit(t *testing.T) {
	testlog.Start(t)
	line := "00000000 00000000\n"
	text := ""
	for i := 0; i < MaxPairs; i++ {
		text += line
	}
	e, err := Parse(text)
	if err != nil {
		t.Fatalf("parse at limit: %v", err)
	}
	if len(e.Pairs) != MaxPairs {
		t.Fatalf("unexpected pair count: %d", len(e.Pairs))
	}
	if _, err := Parse(text + line); !errors.Is(err, ErrTooManyPairs) {
		t.Fatalf("expected ErrTooManyPairs, got %v", err)
	}
}

func TestEntryStringRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := Entry{Name: "Moon Jump", Pairs: []Pair{{0x10000000, 0x3F800000}}}
	out, err := Parse(in.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.Name != in.Name || len(out.Pairs) != 1 || out.Pairs[0] != in.Pairs[0] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
