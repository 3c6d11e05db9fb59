package bbi

import (
	"encoding/binary"

	"github.com/superbobry/big/romio"
)

// BigWigMagic and BigBedMagic identify the two supported BigFile formats.
const (
	BigWigMagic uint32 = 0x888FFC26
	BigBedMagic uint32 = 0x8789F2EB
)

// headerSize is the fixed 64-byte BigFile header (§4.5; see DESIGN.md for
// why this is 64 and not the "96 bytes" the spec prose states).
const headerSize = 64

// ZoomLevel is one entry of a BigFile's zoom-level table: a pre-aggregated
// pyramid level at the given reduction (bp per summary record).
type ZoomLevel struct {
	Reduction   uint32
	DataOffset  uint64
	IndexOffset uint64
}

// Header is the parsed 64-byte BigFile header plus its zoom-level table.
type Header struct {
	Magic                uint32
	Version              uint16
	ZoomLevels           []ZoomLevel
	ChromTreeOffset      uint64
	UnzoomedDataOffset   uint64
	UnzoomedIndexOffset  uint64
	FieldCount           uint16
	DefinedFieldCount    uint16
	AutoSqlOffset        uint64
	TotalSummaryOffset   uint64
	UncompressBufSize    uint32
	ExtensionOffset      uint64
	Order                binary.ByteOrder
}

// detectOrder reads the first 4 bytes of r (which must be positioned at
// the start of the file) and returns the byte order under which they
// equal wantMagic, trying big-endian first, then byte-reversed
// (little-endian). Exactly one must match; otherwise BadSignature.
func detectOrder(r *romio.RomBuffer, wantMagic uint32) (binary.ByteOrder, error) {
	r.Seek(0)
	r.SetOrder(binary.BigEndian)
	be, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("bigfile header: read magic", err)
	}
	if be == wantMagic {
		return binary.BigEndian, nil
	}
	le := reverseUint32(be)
	if le == wantMagic {
		return binary.LittleEndian, nil
	}
	return nil, BadSignature("bigfile header: magic mismatch in both byte orders")
}

func reverseUint32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xff00 | (v<<8)&0xff0000 | v<<24
}

// OpenHeader detects byte order against wantMagic, then parses the header
// and its zoom-level table. r's cursor is left just past the zoom-level
// table on return.
func OpenHeader(r *romio.RomBuffer, wantMagic uint32) (*Header, error) {
	order, err := detectOrder(r, wantMagic)
	if err != nil {
		return nil, err
	}
	r.SetOrder(order)
	r.Seek(0)

	magic, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("bigfile header: read magic", err)
	}
	version, err := r.GetUnsignedShort()
	if err != nil {
		return nil, IOError("bigfile header: read version", err)
	}
	if version < 3 || version > 5 {
		return nil, UnsupportedVersion("bigfile header", int(version))
	}
	zoomLevelCount, err := r.GetUnsignedShort()
	if err != nil {
		return nil, IOError("bigfile header: read zoomLevels", err)
	}
	chromTreeOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read chromTreeOffset", err)
	}
	unzoomedDataOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read unzoomedDataOffset", err)
	}
	unzoomedIndexOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read unzoomedIndexOffset", err)
	}
	fieldCount, err := r.GetUnsignedShort()
	if err != nil {
		return nil, IOError("bigfile header: read fieldCount", err)
	}
	definedFieldCount, err := r.GetUnsignedShort()
	if err != nil {
		return nil, IOError("bigfile header: read definedFieldCount", err)
	}
	autoSqlOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read autoSqlOffset", err)
	}
	totalSummaryOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read totalSummaryOffset", err)
	}
	uncompressBufSize, err := r.GetUnsignedInt()
	if err != nil {
		return nil, IOError("bigfile header: read uncompressBufSize", err)
	}
	extensionOffset, err := r.GetUnsignedLong()
	if err != nil {
		return nil, IOError("bigfile header: read extensionOffset", err)
	}

	levels := make([]ZoomLevel, zoomLevelCount)
	for i := range levels {
		reduction, err := r.GetUnsignedInt()
		if err != nil {
			return nil, IOError("bigfile header: read zoom reduction", err)
		}
		if _, err := r.GetUnsignedInt(); err != nil { // reserved
			return nil, IOError("bigfile header: read zoom reserved", err)
		}
		dataOffset, err := r.GetUnsignedLong()
		if err != nil {
			return nil, IOError("bigfile header: read zoom dataOffset", err)
		}
		indexOffset, err := r.GetUnsignedLong()
		if err != nil {
			return nil, IOError("bigfile header: read zoom indexOffset", err)
		}
		levels[i] = ZoomLevel{Reduction: reduction, DataOffset: dataOffset, IndexOffset: indexOffset}
	}

	return &Header{
		Magic:               magic,
		Version:             version,
		ZoomLevels:          levels,
		ChromTreeOffset:     chromTreeOffset,
		UnzoomedDataOffset:  unzoomedDataOffset,
		UnzoomedIndexOffset: unzoomedIndexOffset,
		FieldCount:          fieldCount,
		DefinedFieldCount:   definedFieldCount,
		AutoSqlOffset:       autoSqlOffset,
		TotalSummaryOffset:  totalSummaryOffset,
		UncompressBufSize:   uncompressBufSize,
		ExtensionOffset:     extensionOffset,
		Order:               order,
	}, nil
}

// PickZoom returns the zoom level with the largest reduction that is
// still <= desiredReduction, and ok=true. If no level qualifies, ok is
// false and the caller should fall back to the unzoomed data.
func (h *Header) PickZoom(desiredReduction uint32) (level ZoomLevel, ok bool) {
	var best *ZoomLevel
	for i := range h.ZoomLevels {
		z := &h.ZoomLevels[i]
		if z.Reduction <= desiredReduction && (best == nil || z.Reduction > best.Reduction) {
			best = z
		}
	}
	if best == nil {
		return ZoomLevel{}, false
	}
	return *best, true
}

// ReadTotalSummary parses a BigSummary from the header's reserved
// totalSummaryOffset slot (count:i64, minVal/maxVal/sum/sumSquares:f64).
func (h *Header) ReadTotalSummary(r *romio.RomBuffer) (BigSummary, error) {
	if h.TotalSummaryOffset == 0 {
		return EmptySummary(), nil
	}
	r.Seek(int64(h.TotalSummaryOffset))
	count, err := r.GetLong()
	if err != nil {
		return BigSummary{}, IOError("total summary: read count", err)
	}
	minVal, err := r.GetDouble()
	if err != nil {
		return BigSummary{}, IOError("total summary: read minVal", err)
	}
	maxVal, err := r.GetDouble()
	if err != nil {
		return BigSummary{}, IOError("total summary: read maxVal", err)
	}
	sum, err := r.GetDouble()
	if err != nil {
		return BigSummary{}, IOError("total summary: read sum", err)
	}
	sumSquares, err := r.GetDouble()
	if err != nil {
		return BigSummary{}, IOError("total summary: read sumSquares", err)
	}
	return BigSummary{Count: count, MinValue: minVal, MaxValue: maxVal, Sum: sum, SumSquares: sumSquares}, nil
}

// WriteTotalSummary writes s at the current write position, the layout
// ReadTotalSummary expects.
func WriteTotalSummary(w *romio.OrderedDataOutput, s BigSummary) error {
	if err := w.PutLong(s.Count); err != nil {
		return err
	}
	if err := w.PutDouble(s.MinValue); err != nil {
		return err
	}
	if err := w.PutDouble(s.MaxValue); err != nil {
		return err
	}
	if err := w.PutDouble(s.Sum); err != nil {
		return err
	}
	return w.PutDouble(s.SumSquares)
}
