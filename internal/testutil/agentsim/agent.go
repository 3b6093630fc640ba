// Package agentsim runs an in-process Gecko agent on a loopback listener.
//
// The agent serves one connection at a time, executes requests strictly in
// order, and records any framing it could not parse. Tests assert on Errors()
// to prove that client requests never interleaved on the wire.
package agentsim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/danmuck/geckoctl/internal/protocol"
)

// Cheat is one entry received by the agent.
type Cheat struct {
	ID      int32
	Name    string
	Words   []uint32
	Enabled bool
}

// Region mirrors a memory map row served by list_region.
type Region struct {
	Start, Size, Type uint32
}

// Settings are the canned replies the agent serves.
type Settings struct {
	Codec       protocol.Codec
	Status      byte
	Version     uint32
	OSVersion   uint32
	KernVersion uint32
	TitleType   uint32
	TitleID     uint32
	GamePID     uint32
	GameName    string
	Regions     []Region
	Log         string
	UploadReply byte
}

// Agent is the simulated remote side.
type Agent struct {
	ln   net.Listener
	base uint32

	mu        sync.Mutex
	settings  Settings
	mem       []byte
	patches   int
	cheats    map[int32]*Cheat
	nextID    int32
	listCalls int
	failBytes int
	errs      []error
	opcodes   []protocol.Opcode
	active    net.Conn
	wg        sync.WaitGroup
}

// Start listens on 127.0.0.1 and serves memory [base, base+size).
func Start(t testing.TB, base uint32, size int) *Agent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("agentsim listen: %v", err)
	}
	a := &Agent{
		settings: Settings{
			Codec:       protocol.LittleEndian,
			Version:     0x82,
			UploadReply: protocol.ACK,
		},
		ln:     ln,
		base:   base,
		mem:    make([]byte, size),
		cheats: map[int32]*Cheat{},
		nextID: 1,
	}
	a.wg.Add(1)
	go a.serve()
	t.Cleanup(a.Close)
	return a
}

func (a *Agent) Close() {
	_ = a.ln.Close()
	a.mu.Lock()
	if a.active != nil {
		_ = a.active.Close()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Configure edits the canned replies.
func (a *Agent) Configure(fn func(*Settings)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.settings)
}

func (a *Agent) snapshot() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// WirelessPatches counts patch_wireless requests.
func (a *Agent) WirelessPatches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.patches
}

func (a *Agent) Host() string {
	return "127.0.0.1"
}

func (a *Agent) Port() int {
	return a.ln.Addr().(*net.TCPAddr).Port
}

// Memory copies [addr, addr+n) out of the agent's memory.
func (a *Agent) Memory(addr uint32, n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := int(addr - a.base)
	out := make([]byte, n)
	copy(out, a.mem[off:off+n])
	return out
}

// SetMemory copies p into the agent's memory at addr.
func (a *Agent) SetMemory(addr uint32, p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.mem[addr-a.base:], p)
}

func (a *Agent) Cheat(id int32) (Cheat, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.cheats[id]
	if !ok {
		return Cheat{}, false
	}
	return *c, true
}

func (a *Agent) ListCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

// FailBytes counts stray FAIL bytes received outside a transfer.
func (a *Agent) FailBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failBytes
}

func (a *Agent) Opcodes() []protocol.Opcode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.Opcode(nil), a.opcodes...)
}

// Errors lists protocol violations seen so far.
func (a *Agent) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]error(nil), a.errs...)
}

func (a *Agent) fail(err error) {
	a.mu.Lock()
	a.errs = append(a.errs, err)
	a.mu.Unlock()
}

func (a *Agent) serve() {
	defer a.wg.Done()
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			return
		}
		a.handle(conn)
	}
}

type conn struct {
	r     *bufio.Reader
	w     net.Conn
	codec protocol.Codec
}

func (c *conn) word() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return c.codec.Word(b[:]), nil
}

func (c *conn) send(p ...[]byte) error {
	for _, b := range p {
		if _, err := c.w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) sendWords(words ...uint32) error {
	return c.send(c.codec.EncodeWords(words...))
}

func (a *Agent) handle(nc net.Conn) {
	a.mu.Lock()
	a.active = nc
	a.mu.Unlock()
	defer nc.Close()
	r := bufio.NewReader(nc)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		set := a.snapshot()
		c := &conn{r: r, w: nc, codec: set.Codec}
		op := protocol.Opcode(b)
		a.mu.Lock()
		a.opcodes = append(a.opcodes, op)
		a.mu.Unlock()
		if err := a.dispatch(c, set, op); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				a.fail(fmt.Errorf("%s: %w", op, err))
			}
			return
		}
	}
}

var errProtocol = errors.New("agentsim: protocol violation")

func (a *Agent) dispatch(c *conn, set Settings, op protocol.Opcode) error {
	switch op {
	case protocol.CmdPoke08, protocol.CmdPoke16, protocol.CmdPokeMem:
		return a.poke(c, op)
	case protocol.CmdReadMem:
		return a.readMem(c)
	case protocol.CmdUpload:
		return a.upload(c, set.UploadReply)
	case protocol.CmdStatus:
		return c.send([]byte{set.Status})
	case protocol.CmdVersion:
		return c.sendWords(set.Version)
	case protocol.CmdOSVersion:
		return c.sendWords(set.OSVersion)
	case protocol.CmdKernVersion:
		return c.sendWords(set.KernVersion)
	case protocol.CmdTitleType:
		return c.sendWords(set.TitleType)
	case protocol.CmdTitleID:
		return c.sendWords(set.TitleID)
	case protocol.CmdGamePID:
		return c.sendWords(set.GamePID)
	case protocol.CmdGameName:
		var name [8]byte
		copy(name[:], set.GameName)
		return c.send(name[:])
	case protocol.CmdPatchWireless:
		a.mu.Lock()
		a.patches++
		a.mu.Unlock()
		return nil
	case protocol.CmdAddCheat:
		return a.addCheat(c)
	case protocol.CmdDeleteCheat, protocol.CmdEnableCheat, protocol.CmdDisableCheat:
		return a.cheatByID(c, op)
	case protocol.CmdListCheats:
		a.mu.Lock()
		a.listCalls++
		a.mu.Unlock()
		return nil
	case protocol.CmdListRegion:
		if err := c.send([]byte{byte(len(set.Regions))}); err != nil {
			return err
		}
		for _, r := range set.Regions {
			if err := c.sendWords(r.Start, r.Size, r.Type); err != nil {
				return err
			}
		}
		return nil
	case protocol.CmdFetchLog:
		if err := c.sendWords(uint32(len(set.Log))); err != nil {
			return err
		}
		if set.Log == "" {
			return nil
		}
		return c.send([]byte(set.Log))
	case protocol.Opcode(protocol.FAIL):
		a.mu.Lock()
		a.failBytes++
		a.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("%w: unknown opcode 0x%02X", errProtocol, byte(op))
	}
}

func (a *Agent) inRange(start, end uint32) bool {
	return start >= a.base && end >= start && uint64(end) <= uint64(a.base)+uint64(len(a.mem))
}

func (a *Agent) poke(c *conn, op protocol.Opcode) error {
	addr, err := c.word()
	if err != nil {
		return err
	}
	v, err := c.word()
	if err != nil {
		return err
	}
	size := map[protocol.Opcode]uint32{protocol.CmdPoke08: 1, protocol.CmdPoke16: 2, protocol.CmdPokeMem: 4}[op]
	if !a.inRange(addr, addr+size) {
		return fmt.Errorf("%w: poke outside memory at 0x%08X", errProtocol, addr)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.mem[addr-a.base:]
	order := c.codec.Order()
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		order.PutUint16(b, uint16(v))
	default:
		order.PutUint32(b, v)
	}
	return nil
}

func (a *Agent) readMem(c *conn) error {
	start, err := c.word()
	if err != nil {
		return err
	}
	end, err := c.word()
	if err != nil {
		return err
	}
	if !a.inRange(start, end) {
		return c.send([]byte{protocol.FAIL})
	}
	for addr := start; addr < end; {
		n := min(end-addr, uint32(protocol.PacketSize))
		chunk := a.Memory(addr, int(n))
		if err := c.send([]byte{protocol.ACK}); err != nil {
			return err
		}
		if allZero(chunk) {
			if err := c.send([]byte{protocol.BlockZero}); err != nil {
				return err
			}
		} else {
			if err := c.send([]byte{protocol.BlockNonZero}, c.codec.EncodeWords(n), chunk); err != nil {
				return err
			}
		}
		reply, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		switch reply {
		case protocol.ACK:
		case protocol.FAIL:
			return nil
		default:
			return fmt.Errorf("%w: chunk reply 0x%02X", errProtocol, reply)
		}
		addr += n
		// A cancelling client sends FAIL right behind its ACK.
		if c.r.Buffered() > 0 {
			if next, _ := c.r.Peek(1); next[0] == protocol.FAIL {
				_, _ = c.r.ReadByte()
				return nil
			}
		}
	}
	return nil
}

func allZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a *Agent) upload(c *conn, reply byte) error {
	start, err := c.word()
	if err != nil {
		return err
	}
	end, err := c.word()
	if err != nil {
		return err
	}
	data := make([]byte, end-start)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return err
	}
	if !a.inRange(start, end) {
		return c.send([]byte{protocol.FAIL})
	}
	a.SetMemory(start, data)
	return c.send([]byte{reply})
}

func (a *Agent) addCheat(c *conn) error {
	size, err := c.word()
	if err != nil {
		return err
	}
	if size%8 != 0 || size > 8*128 {
		return fmt.Errorf("%w: cheat size %d", errProtocol, size)
	}
	words := make([]uint32, size/4)
	for i := range words {
		if words[i], err = c.word(); err != nil {
			return err
		}
	}
	nameLen, err := c.word()
	if err != nil {
		return err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(c.r, name); err != nil {
		return err
	}
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.cheats[id] = &Cheat{ID: id, Name: string(name), Words: words}
	a.mu.Unlock()
	return c.sendWords(uint32(id))
}

func (a *Agent) cheatByID(c *conn, op protocol.Opcode) error {
	raw, err := c.word()
	if err != nil {
		return err
	}
	id := int32(raw)
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.cheats[id]
	if !ok {
		return nil
	}
	switch op {
	case protocol.CmdDeleteCheat:
		delete(a.cheats, id)
	case protocol.CmdEnableCheat:
		ch.Enabled = true
	case protocol.CmdDisableCheat:
		ch.Enabled = false
	}
	return nil
}
