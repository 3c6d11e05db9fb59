package romio

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
)

// Compression identifies the per-block compression scheme recorded
// implicitly by a BigFile's uncompressBufSize flag and version field (see
// bbi.Header): NONE is used when uncompressBufSize is zero; DEFLATE is the
// version 3-5 default; SNAPPY requires version >= 5.
type Compression uint8

const (
	// CompressionNone marks an uncompressed block.
	CompressionNone Compression = iota
	// CompressionDeflate is zlib-wrapped DEFLATE, the long-standing default.
	CompressionDeflate
	// CompressionSnappy requires format version >= 5.
	CompressionSnappy
)

func decompressBytes(compression Compression, raw []byte, sizeHint int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case CompressionDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, wrapIO(err, "romio: zlib header")
		}
		defer zr.Close() // nolint: errcheck
		buf := bytes.NewBuffer(make([]byte, 0, sizeHint))
		if _, err := io.Copy(buf, zr); err != nil {
			return nil, wrapIO(err, "romio: zlib inflate")
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		out, err := snappy.Decode(make([]byte, 0, sizeHint), raw)
		if err != nil {
			return nil, wrapIO(err, "romio: snappy decode")
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCompression
	}
}

func compressBytes(compression Compression, raw []byte) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return raw, nil
	case CompressionDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, wrapIO(err, "romio: zlib deflate")
		}
		if err := zw.Close(); err != nil {
			return nil, wrapIO(err, "romio: zlib deflate close")
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, raw), nil
	default:
		return nil, ErrUnsupportedCompression
	}
}
