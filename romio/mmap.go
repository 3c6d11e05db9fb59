//go:build (linux || darwin) && (amd64 || arm64)

package romio

import (
	"encoding/binary"
	"os"

	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"
)

// mmapSource is a read-only view over an mmap'd region. Reads are plain
// memory copies with no locking, so it's both the fastest and the most
// trivially concurrent-safe of the four variants.
type mmapSource struct {
	data []byte
}

func (m *mmapSource) readAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, errors.E("romio: mmap: read past end of file")
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, ErrTruncated
	}
	return n, nil
}

func (m *mmapSource) size() int64 { return int64(len(m.data)) }

func (m *mmapSource) close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

type mmapFactory struct {
	src   *mmapSource
	order binary.ByteOrder
}

// NewMmapFactory memory-maps path read-only and returns a Factory whose
// RomBuffers all read directly from the mapping. 64-bit Linux/macOS only;
// on other platforms use NewThreadSafeFactory or NewPerCursorFactory
// instead.
func NewMmapFactory(path string, order binary.ByteOrder) (Factory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapIO(err, "romio: mmap: open "+path)
	}
	defer f.Close() // nolint: errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, wrapIO(err, "romio: mmap: stat "+path)
	}
	size := int(info.Size())
	if size == 0 {
		return &mmapFactory{src: &mmapSource{data: nil}, order: order}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, wrapIO(err, "romio: mmap: mmap "+path)
	}
	return &mmapFactory{src: &mmapSource{data: data}, order: order}, nil
}

func (f *mmapFactory) Open() (*RomBuffer, error) {
	return singleBuffer(f.src, f.order, nil), nil
}

func (f *mmapFactory) Close() error { return f.src.close() }
