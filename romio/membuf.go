package romio

import "io"

// MemWriteSeeker is an in-memory io.WriteSeeker: the staging buffer
// OrderedDataOutput writes into when the destination (e.g. a
// github.com/grailbio/base/file.File) only exposes a plain io.Writer and
// cannot itself be seeked back into for header backpatching. Once a
// Writer pipeline finishes, Bytes returns the complete file contents for
// a single streamed write to the real destination.
type MemWriteSeeker struct {
	buf []byte
	pos int64
}

// Write implements io.Writer, growing buf and overwriting in place as
// needed depending on pos.
func (m *MemWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

// Seek implements io.Seeker. Only io.SeekStart and io.SeekCurrent are
// used by OrderedDataOutput.PatchUnsignedLong/PatchUnsignedInt.
func (m *MemWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.buf)) + offset
	default:
		return 0, wrapIO(io.ErrUnexpectedEOF, "romio: membuf: bad whence")
	}
	if target < 0 {
		return 0, wrapIO(io.ErrUnexpectedEOF, "romio: membuf: negative seek")
	}
	m.pos = target
	return m.pos, nil
}

// Bytes returns the buffer's contents. Valid at any point, but normally
// called once the write pipeline has finished.
func (m *MemWriteSeeker) Bytes() []byte { return m.buf }
