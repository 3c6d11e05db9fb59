package romio

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
)

// handle is one open file.File plus the io.ReadSeeker view onto it. Every
// factory but the memory-mapped one is built out of these; they differ
// only in how many of them are kept open and how access to each is
// serialized.
type handle struct {
	ctx context.Context
	f   file.File
	rs  io.ReadSeeker
}

func openHandle(ctx context.Context, path string) (*handle, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, wrapIO(err, "romio: open "+path)
	}
	return &handle{ctx: ctx, f: f, rs: f.Reader(ctx)}, nil
}

func (h *handle) readAt(p []byte, off int64) (int, error) {
	if _, err := h.rs.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(h.rs, p)
}

func (h *handle) size() int64 {
	end, err := h.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0
	}
	return end
}

func (h *handle) close() error {
	return wrapIO(h.f.Close(h.ctx), "romio: close")
}
