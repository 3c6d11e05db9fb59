package romio

import "encoding/binary"

// Factory is a source of fresh RomBuffers, all over the same file and
// byte order. The four implementations in this package — NewSharedFactory,
// NewPerCursorFactory, NewThreadSafeFactory, NewMmapFactory — differ only
// in fd count and concurrency strategy; all must produce bit-identical
// reads.
type Factory interface {
	// Open returns a fresh RomBuffer spanning the whole file, cursor at 0.
	Open() (*RomBuffer, error)
	// Close releases every resource the factory holds. Any RomBuffer
	// still in use afterward is invalid.
	Close() error
}

func singleBuffer(src source, order binary.ByteOrder, dup func() (source, error)) *RomBuffer {
	return &RomBuffer{src: src, order: order, dup: dup}
}
