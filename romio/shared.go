package romio

import (
	"context"
	"encoding/binary"
	"sync"
)

// lockedSource wraps a single handle with a mutex, serializing every read.
// It backs both the shared factory (one instance shared by every
// RomBuffer it produces) and the per-cursor factory (a fresh instance per
// cursor).
type lockedSource struct {
	mu sync.Mutex
	h  *handle
}

func (s *lockedSource) readAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.readAt(p, off)
}

func (s *lockedSource) size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.size()
}

func (s *lockedSource) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.close()
}

// sharedFactory is the "shared-endian synchronized" variant: a single file
// handle behind a mutex. Simplest of the four, and the only one that
// serializes concurrent reads rather than parallelizing them.
type sharedFactory struct {
	src   *lockedSource
	order binary.ByteOrder
}

// NewSharedFactory opens path once and returns a Factory whose RomBuffers
// all share that single handle under a mutex. Concurrent callers see
// correct, serialized reads; none of them need to call duplicate().
func NewSharedFactory(ctx context.Context, path string, order binary.ByteOrder) (Factory, error) {
	h, err := openHandle(ctx, path)
	if err != nil {
		return nil, err
	}
	return &sharedFactory{src: &lockedSource{h: h}, order: order}, nil
}

func (f *sharedFactory) Open() (*RomBuffer, error) {
	return singleBuffer(f.src, f.order, nil), nil
}

func (f *sharedFactory) Close() error { return f.src.close() }
