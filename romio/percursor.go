package romio

import (
	"context"
	"encoding/binary"
	"sync"
)

// perCursorFactory is the "per-cursor endian" variant: every call to Open
// or Duplicate opens a brand-new file handle, so cursors are fully
// independent and can be used concurrently without any locking between
// them — at the cost of one fd per cursor.
type perCursorFactory struct {
	ctx   context.Context
	path  string
	order binary.ByteOrder

	mu      sync.Mutex
	handles []*lockedSource // tracked only so Close can release everything
}

// NewPerCursorFactory returns a Factory where every RomBuffer (and every
// Duplicate of one) owns its own file handle. This is the right choice
// when callers need true parallel random access and fd count isn't a
// concern.
func NewPerCursorFactory(ctx context.Context, path string, order binary.ByteOrder) (Factory, error) {
	return &perCursorFactory{ctx: ctx, path: path, order: order}, nil
}

func (f *perCursorFactory) openOne() (source, error) {
	h, err := openHandle(f.ctx, f.path)
	if err != nil {
		return nil, err
	}
	src := &lockedSource{h: h}
	f.mu.Lock()
	f.handles = append(f.handles, src)
	f.mu.Unlock()
	return src, nil
}

func (f *perCursorFactory) Open() (*RomBuffer, error) {
	src, err := f.openOne()
	if err != nil {
		return nil, err
	}
	return singleBuffer(src, f.order, f.openOne), nil
}

func (f *perCursorFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for _, src := range f.handles {
		if err := src.close(); err != nil && first == nil {
			first = err
		}
	}
	f.handles = nil
	return first
}
