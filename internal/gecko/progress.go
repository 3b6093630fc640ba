package gecko

// Progress is reported before and after every bulk transfer chunk.
type Progress struct {
	Address     uint32
	Chunk       uint32
	Chunks      uint32
	Transferred uint32
	Length      uint32
	OK          bool
	Read        bool
}

// Done reports whether every byte has moved.
func (p Progress) Done() bool {
	return p.Transferred >= p.Length
}

// ProgressFunc runs on the transferring goroutine between chunks and must
// not block.
type ProgressFunc func(Progress)

func (f ProgressFunc) emit(p Progress) {
	if f != nil {
		f(p)
	}
}
