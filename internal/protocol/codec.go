package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Codec converts host integers to and from the wire's byte order.
// The zero value encodes little-endian.
type Codec struct {
	order binary.ByteOrder
}

// LittleEndian is the NTR agent's order and the default wire order.
var LittleEndian = Codec{order: binary.LittleEndian}

// BigEndian is opt-in, for agents that speak network order.
var BigEndian = Codec{order: binary.BigEndian}

// ParseByteOrder maps "little"/"big" (and common aliases) to a Codec.
func ParseByteOrder(raw string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "little", "le", "little-endian":
		return LittleEndian, nil
	case "big", "be", "big-endian", "network":
		return BigEndian, nil
	default:
		return Codec{}, fmt.Errorf("protocol: unknown byte order %q", raw)
	}
}

func (c Codec) Order() binary.ByteOrder {
	if c.order == nil {
		return binary.LittleEndian
	}
	return c.order
}

func (c Codec) String() string {
	if c.Order() == binary.ByteOrder(binary.BigEndian) {
		return "big"
	}
	return "little"
}

// EncodeWords packs words into one contiguous buffer in wire order.
func (c Codec) EncodeWords(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.NativeEndian.PutUint32(buf[i*4:], c.Swap32(w))
	}
	return buf
}

// Word decodes the first four bytes of b.
func (c Codec) Word(b []byte) uint32 {
	return c.Swap32(binary.NativeEndian.Uint32(b))
}

func (c Codec) Half(b []byte) uint16 {
	return c.Swap16(binary.NativeEndian.Uint16(b))
}

// Swap16 converts between host order and wire order.
func (c Codec) Swap16(v uint16) uint16 {
	if c.native() {
		return v
	}
	return Swap16(v)
}

func (c Codec) Swap32(v uint32) uint32 {
	if c.native() {
		return v
	}
	return Swap32(v)
}

func (c Codec) native() bool {
	return c.String() == hostOrder.String()
}

var hostOrder = HostOrder()

// HostOrder reports the codec matching the running machine.
func HostOrder() Codec {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 0x0102)
	if b[0] == 0x02 {
		return LittleEndian
	}
	return BigEndian
}

func Swap16(v uint16) uint16 {
	return v>>8 | v<<8
}

func Swap32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
}
