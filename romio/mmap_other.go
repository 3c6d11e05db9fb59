//go:build !((linux || darwin) && (amd64 || arm64))

package romio

import (
	"encoding/binary"

	"github.com/grailbio/base/errors"
)

// NewMmapFactory is unavailable on this platform/arch combination. Use
// NewThreadSafeFactory or NewPerCursorFactory instead.
func NewMmapFactory(path string, order binary.ByteOrder) (Factory, error) {
	return nil, errors.E("romio: mmap: unsupported on this platform")
}
