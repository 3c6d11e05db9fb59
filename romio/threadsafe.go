package romio

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/grailbio/base/errors"
)

// poolSource checks a handle out of a pool per read and returns it
// afterward, instead of opening a new one per cursor (perCursorFactory) or
// serializing on a single one (lockedSource). This is the "thread-safe
// endian" variant: a stand-in for platforms where thread-local storage of
// real file handles would be used, implemented here as a bounded-growth
// handle pool so concurrent readers rarely block on each other.
type poolSource struct {
	ctx  context.Context
	path string
	pool sync.Pool
}

func newPoolSource(ctx context.Context, path string) *poolSource {
	p := &poolSource{ctx: ctx, path: path}
	p.pool.New = func() interface{} {
		h, err := openHandle(ctx, path)
		if err != nil {
			return err
		}
		return h
	}
	return p
}

func (p *poolSource) checkout() (*handle, error) {
	switch v := p.pool.Get().(type) {
	case *handle:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, errors.E("romio: pool: unexpected value type")
	}
}

func (p *poolSource) readAt(b []byte, off int64) (int, error) {
	h, err := p.checkout()
	if err != nil {
		return 0, err
	}
	n, err := h.readAt(b, off)
	p.pool.Put(h)
	return n, err
}

func (p *poolSource) size() int64 {
	h, err := p.checkout()
	if err != nil {
		return 0
	}
	n := h.size()
	p.pool.Put(h)
	return n
}

func (p *poolSource) close() error {
	// Pooled handles are closed as the pool drops them during GC; there is
	// no way to enumerate sync.Pool's contents for an eager close. This
	// mirrors the "thread-local handles" trade-off called out in the
	// package doc: faster concurrent access, slightly deferred cleanup.
	return nil
}

// threadSafeFactory is shared by every RomBuffer and Duplicate it
// produces: the pool itself is the concurrency primitive, so there is
// nothing further to special-case per cursor.
type threadSafeFactory struct {
	src   *poolSource
	order binary.ByteOrder
}

// NewThreadSafeFactory returns a Factory backed by a pool of handles to
// path, checked out per read. Concurrent RomBuffers (including
// duplicates) never block on one another except under pool contention.
func NewThreadSafeFactory(ctx context.Context, path string, order binary.ByteOrder) (Factory, error) {
	return &threadSafeFactory{src: newPoolSource(ctx, path), order: order}, nil
}

func (f *threadSafeFactory) Open() (*RomBuffer, error) {
	return singleBuffer(f.src, f.order, nil), nil
}

func (f *threadSafeFactory) Close() error { return f.src.close() }
