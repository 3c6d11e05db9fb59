package bbi

import "github.com/superbobry/big/romio"

// zoomRecordSize is chromIx(4)+start(4)+end(4)+validCount(4)+minVal(4)+
// maxVal(4)+sumData(4)+sumSquares(4), all fixed-width, back-to-back with
// no per-record header (unlike WigSection/BedEntry blocks).
const zoomRecordSize = 32

// ZoomRecord is one pre-aggregated zoom-pyramid bin: a bounding interval
// plus the BigSummary of every value it covers.
type ZoomRecord struct {
	ChromIx int32
	Start   int32
	End     int32
	Summary BigSummary
}

// DecodeZoomBlock decodes every record in a decompressed zoom data block.
// Zoom blocks have no count prefix; the decoder reads until r is
// exhausted.
func DecodeZoomBlock(r *romio.RomBuffer) ([]ZoomRecord, error) {
	n := int(r.Len() / zoomRecordSize)
	out := make([]ZoomRecord, 0, n)
	for r.Pos() < r.Len() {
		rec, err := decodeZoomRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeZoomRecord(r *romio.RomBuffer) (ZoomRecord, error) {
	chromIx, err := r.GetInt()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read chromIx", err)
	}
	start, err := r.GetInt()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read start", err)
	}
	end, err := r.GetInt()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read end", err)
	}
	validCount, err := r.GetInt()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read validCount", err)
	}
	minVal, err := r.GetFloat()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read minVal", err)
	}
	maxVal, err := r.GetFloat()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read maxVal", err)
	}
	sumData, err := r.GetFloat()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read sumData", err)
	}
	sumSquares, err := r.GetFloat()
	if err != nil {
		return ZoomRecord{}, IOError("zoom record: read sumSquares", err)
	}
	return ZoomRecord{
		ChromIx: chromIx,
		Start:   start,
		End:     end,
		Summary: BigSummary{
			Count:      int64(validCount),
			MinValue:   float64(minVal),
			MaxValue:   float64(maxVal),
			Sum:        float64(sumData),
			SumSquares: float64(sumSquares),
		},
	}, nil
}

// zoomWriter is the subset of OrderedDataOutput/CompressedBlock that
// EncodeZoomRecord needs.
type zoomWriter interface {
	PutInt(int32) error
	PutFloat(float32) error
}

// EncodeZoomRecord appends rec in the fixed 32-byte layout DecodeZoomBlock
// expects.
func EncodeZoomRecord(w zoomWriter, rec ZoomRecord) error {
	if err := w.PutInt(rec.ChromIx); err != nil {
		return err
	}
	if err := w.PutInt(rec.Start); err != nil {
		return err
	}
	if err := w.PutInt(rec.End); err != nil {
		return err
	}
	if err := w.PutInt(int32(rec.Summary.Count)); err != nil {
		return err
	}
	if err := w.PutFloat(float32(rec.Summary.MinValue)); err != nil {
		return err
	}
	if err := w.PutFloat(float32(rec.Summary.MaxValue)); err != nil {
		return err
	}
	if err := w.PutFloat(float32(rec.Summary.Sum)); err != nil {
		return err
	}
	return w.PutFloat(float32(rec.Summary.SumSquares))
}
