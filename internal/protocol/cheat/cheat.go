// Package cheat encodes the textual cheat format into address/value word pairs.
//
// A description is an optional "[name]" header line followed by lines holding
// two 8-digit hexadecimal tokens each:
//
//	[Infinite Health]
//	10A3B2C0 000003E7
//	10A3B2C4 000003E7
package cheat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxPairs caps the number of address/value pairs one entry may carry.
const MaxPairs = 128

var (
	ErrEmpty        = errors.New("cheat: empty description")
	ErrMalformed    = errors.New("cheat: malformed line")
	ErrTooManyPairs = errors.New("cheat: too many pairs")
)

// Pair is one address/value patch.
type Pair struct {
	Address uint32
	Value   uint32
}

// Entry is a named patch list ready to send to the agent.
type Entry struct {
	Name  string
	Pairs []Pair
}

// Parse encodes text into an Entry.
func Parse(text string) (Entry, error) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, ErrEmpty
	}

	var e Entry
	lines := strings.Split(strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "[") {
			e.Name = strings.TrimSpace(strings.NewReplacer("[", " ", "]", " ").Replace(line))
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != 2 {
			return Entry{}, fmt.Errorf("%w: line %d: want 2 tokens, got %d", ErrMalformed, i+1, len(tokens))
		}
		addr, err := parseToken(tokens[0])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, i+1, err)
		}
		value, err := parseToken(tokens[1])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: line %d: %v", ErrMalformed, i+1, err)
		}
		if len(e.Pairs) == MaxPairs {
			return Entry{}, fmt.Errorf("%w: limit is %d", ErrTooManyPairs, MaxPairs)
		}
		e.Pairs = append(e.Pairs, Pair{Address: addr, Value: value})
	}
	if len(e.Pairs) == 0 {
		return Entry{}, ErrEmpty
	}
	return e, nil
}

func parseToken(tok string) (uint32, error) {
	if len(tok) != 8 {
		return 0, fmt.Errorf("token %q is not 8 hex digits", tok)
	}
	v, err := strconv.ParseUint(tok, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("token %q: %w", tok, err)
	}
	return uint32(v), nil
}

// Words flattens the pairs as address, value, address, value, ...
func (e Entry) Words() []uint32 {
	out := make([]uint32, 0, 2*len(e.Pairs))
	for _, p := range e.Pairs {
		out = append(out, p.Address, p.Value)
	}
	return out
}

// Size is the byte length of the packed pair array.
func (e Entry) Size() uint32 {
	return uint32(8 * len(e.Pairs))
}

// String renders the entry back into the textual format.
func (e Entry) String() string {
	var b strings.Builder
	if e.Name != "" {
		fmt.Fprintf(&b, "[%s]\n", e.Name)
	}
	for i, p := range e.Pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%08X %08X", p.Address, p.Value)
	}
	return b.String()
}
