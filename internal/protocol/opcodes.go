package protocol

// Opcode is the single command byte that starts every request.
type Opcode byte

const (
	CmdPoke08        Opcode = 0x01
	CmdPoke16        Opcode = 0x02
	CmdPokeMem       Opcode = 0x03
	CmdReadMem       Opcode = 0x04
	CmdUpload        Opcode = 0x41
	CmdStatus        Opcode = 0x50
	CmdTitleType     Opcode = 0x51
	CmdTitleID       Opcode = 0x52
	CmdGamePID       Opcode = 0x53
	CmdGameName      Opcode = 0x54
	CmdPatchWireless Opcode = 0x55
	CmdAddCheat      Opcode = 0x56
	CmdDeleteCheat   Opcode = 0x57
	CmdEnableCheat   Opcode = 0x58
	CmdDisableCheat  Opcode = 0x59
	CmdListCheats    Opcode = 0x60
	CmdVersion       Opcode = 0x99
	CmdOSVersion     Opcode = 0x9A
	CmdKernVersion   Opcode = 0x9B
	CmdListRegion    Opcode = 0x9C
	CmdFetchLog      Opcode = 0x9D
)

// Bulk transfer status bytes.
const (
	ACK   byte = 0xAA
	RETRY byte = 0xBB
	FAIL  byte = 0xCC
	DONE  byte = 0xFF
)

// Dump block markers.
const (
	BlockZero    byte = 0xB0
	BlockNonZero byte = 0xBD
)

// PacketSize bounds one chunk in both transfer directions.
const PacketSize = 0x1000

var opcodeNames = map[Opcode]string{
	CmdPoke08:        "poke08",
	CmdPoke16:        "poke16",
	CmdPokeMem:       "pokemem",
	CmdReadMem:       "readmem",
	CmdUpload:        "upload",
	CmdStatus:        "status",
	CmdTitleType:     "title_type",
	CmdTitleID:       "title_id",
	CmdGamePID:       "game_pid",
	CmdGameName:      "game_name",
	CmdPatchWireless: "patch_wireless",
	CmdAddCheat:      "add_cheat",
	CmdDeleteCheat:   "delete_cheat",
	CmdEnableCheat:   "enable_cheat",
	CmdDisableCheat:  "disable_cheat",
	CmdListCheats:    "list_cheats",
	CmdVersion:       "version",
	CmdOSVersion:     "os_version",
	CmdKernVersion:   "kern_version",
	CmdListRegion:    "list_region",
	CmdFetchLog:      "fetch_log",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "unknown"
}

// ChunkCount returns how many PacketSize chunks cover length bytes.
func ChunkCount(length uint32) uint32 {
	n := length / PacketSize
	if length%PacketSize > 0 {
		n++
	}
	return n
}
