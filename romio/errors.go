package romio

import (
	"io"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/pkg/errors"
)

// ErrTruncated is returned when a read would run past the end of the
// region a RomBuffer is scoped to.
var ErrTruncated = errors.New("romio: truncated read")

// ErrUnsupportedCompression is returned by decompress for a compression
// kind this build doesn't recognize.
var ErrUnsupportedCompression = errors.New("romio: unsupported compression")

// wrapIO normalizes an I/O failure to ErrTruncated when it looks like a
// short read past the end of a region, and otherwise attaches "where" as
// context via grailbio/base/errors.
func wrapIO(err error, where string) error {
	if err == nil {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return baseerrors.E(err, where)
}
