package bigwig

import (
	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// SectionType identifies which of the three WIG encodings a decompressed
// data block holds.
type SectionType uint8

const (
	BedGraph     SectionType = 1
	VariableStep SectionType = 2
	FixedStep    SectionType = 3
)

// Record is one (half-open interval, value) pair, the common shape every
// WIG encoding is normalized to once decoded.
type Record struct {
	Start int32
	End   int32
	Value float32
}

// Section is a decoded WIG block: a run of non-overlapping Records sorted
// by Start, sharing a chromosome, type, and (for FixedStep) step/span.
type Section struct {
	ChromIx int32
	Start   int32
	End     int32
	Step    int32
	Span    int32
	Type    SectionType
	Records []Record
}

// writer is the subset of romio.OrderedDataOutput/romio.CompressedBlock
// that EncodeSection needs; both satisfy it, letting the writer target
// either a raw header region or a scoped compressed block.
type writer interface {
	PutUnsignedByte(uint8) error
	PutShort(int16) error
	PutUnsignedShort(uint16) error
	PutInt(int32) error
	PutUnsignedInt(uint32) error
	PutFloat(float32) error
}

// DecodeSection decodes an entire block with no query filtering: every
// record the block holds. The writer's zoom pyramid is built from the
// in-memory sections and does not call it.
func DecodeSection(r *romio.RomBuffer) (*Section, error) {
	s, err := decodeSectionHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := r.GetUnsignedShort()
	if err != nil {
		return nil, bbi.IOError("wig section: read count", err)
	}
	switch s.Type {
	case FixedStep:
		s.Records = make([]Record, count)
		for i := 0; i < int(count); i++ {
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read fixedStep value", err)
			}
			start := s.Start + int32(i)*s.Step
			s.Records[i] = Record{Start: start, End: start + s.Span, Value: v}
		}
	case VariableStep:
		s.Records = make([]Record, count)
		for i := 0; i < int(count); i++ {
			pos, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read variableStep position", err)
			}
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read variableStep value", err)
			}
			s.Records[i] = Record{Start: pos, End: pos + s.Span, Value: v}
		}
	case BedGraph:
		s.Records = make([]Record, count)
		for i := 0; i < int(count); i++ {
			start, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph start", err)
			}
			end, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph end", err)
			}
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph value", err)
			}
			s.Records[i] = Record{Start: start, End: end, Value: v}
		}
	default:
		return nil, bbi.FormatError("wig section: unknown type", nil)
	}
	return s, nil
}

func decodeSectionHeader(r *romio.RomBuffer) (*Section, error) {
	chromIx, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("wig section: read chromIx", err)
	}
	start, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("wig section: read start", err)
	}
	end, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("wig section: read end", err)
	}
	step, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("wig section: read step", err)
	}
	span, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("wig section: read span", err)
	}
	typ, err := r.GetUnsignedByte()
	if err != nil {
		return nil, bbi.IOError("wig section: read type", err)
	}
	if _, err := r.GetUnsignedByte(); err != nil { // reserved
		return nil, bbi.IOError("wig section: read reserved", err)
	}
	return &Section{ChromIx: chromIx, Start: start, End: end, Step: step, Span: span, Type: SectionType(typ)}, nil
}

// consistent reports whether [start,end) is consistent with query under
// the §4.6 semantics: intersecting it when overlaps is true (an interval
// that only touches query's start edge still counts), fully contained in
// it otherwise (an interval that only touches query's end edge does not
// count as contained). See concrete scenarios 1/2 in §8: for
// fixedStep(start=100,step=10,span=5) against query=[105,125), the
// overlap pass keeps the record at 100 (end=105 touches query.Start) and
// drops the one at 130, while the containment pass keeps only the record
// at 110 and drops the one at 120 (end=125 touches query.End).
func consistent(start, end int32, query bbi.Interval, overlaps bool) bool {
	if overlaps {
		return start < query.End && end >= query.Start
	}
	return start >= query.Start && end < query.End
}

// QuerySection decodes a single block, keeping only records consistent
// with query, applying the short-circuit decode described in §4.6: once a
// record has matched, the first subsequent non-match ends the decode
// (records are sorted by start, so a non-match cannot be followed by a
// later match). Returns (nil, nil) if nothing in the block matches.
func QuerySection(r *romio.RomBuffer, query bbi.Interval, overlaps bool) (*Section, error) {
	s, err := decodeSectionHeader(r)
	if err != nil {
		return nil, err
	}
	if s.ChromIx != query.ChromIx {
		return nil, nil
	}
	count, err := r.GetUnsignedShort()
	if err != nil {
		return nil, bbi.IOError("wig section: read count", err)
	}

	var records []Record
	matched := false
	appendOrStop := func(start, end int32, value float32) (stop bool) {
		if consistent(start, end, query, overlaps) {
			records = append(records, Record{Start: start, End: end, Value: value})
			matched = true
			return false
		}
		return matched
	}

	switch s.Type {
	case FixedStep:
		for i := 0; i < int(count); i++ {
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read fixedStep value", err)
			}
			start := s.Start + int32(i)*s.Step
			if appendOrStop(start, start+s.Span, v) {
				break
			}
		}
		if len(records) > 0 {
			s.Start = fixedStepRealignedStart(s.Start, s.Step, query, overlaps)
		}
	case VariableStep:
		for i := 0; i < int(count); i++ {
			pos, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read variableStep position", err)
			}
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read variableStep value", err)
			}
			if appendOrStop(pos, pos+s.Span, v) {
				break
			}
		}
	case BedGraph:
		for i := 0; i < int(count); i++ {
			start, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph start", err)
			}
			end, err := r.GetInt()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph end", err)
			}
			v, err := r.GetFloat()
			if err != nil {
				return nil, bbi.IOError("wig section: read bedGraph value", err)
			}
			if appendOrStop(start, end, v) {
				break
			}
		}
	default:
		return nil, bbi.FormatError("wig section: unknown type", nil)
	}

	if len(records) == 0 {
		return nil, nil
	}
	s.Records = records
	return s, nil
}

// fixedStepRealignedStart rebases a fixed-step section's Start so the
// first emitted value aligns with the first record consistent with
// query, per the §4.6 realignment rule.
func fixedStepRealignedStart(blockStart, step int32, query bbi.Interval, overlaps bool) int32 {
	if step == 0 {
		return blockStart
	}
	margin := query.Start % step
	var shift int32
	switch {
	case margin == 0:
		shift = 0
	case overlaps:
		shift = -margin
	default:
		shift = step - margin
	}
	realigned := query.Start + shift
	if blockStart > realigned {
		return blockStart
	}
	return realigned
}

// EncodeSection writes s's header and records in the on-disk layout
// decodeSectionHeader/DecodeSection expect.
func EncodeSection(w writer, s *Section) error {
	if err := w.PutInt(s.ChromIx); err != nil {
		return err
	}
	if err := w.PutInt(s.Start); err != nil {
		return err
	}
	if err := w.PutInt(s.End); err != nil {
		return err
	}
	if err := w.PutInt(s.Step); err != nil {
		return err
	}
	if err := w.PutInt(s.Span); err != nil {
		return err
	}
	if err := w.PutUnsignedByte(uint8(s.Type)); err != nil {
		return err
	}
	if err := w.PutUnsignedByte(0); err != nil { // reserved
		return err
	}
	if err := w.PutUnsignedShort(uint16(len(s.Records))); err != nil {
		return err
	}
	switch s.Type {
	case FixedStep:
		for _, rec := range s.Records {
			if err := w.PutFloat(rec.Value); err != nil {
				return err
			}
		}
	case VariableStep:
		for _, rec := range s.Records {
			if err := w.PutInt(rec.Start); err != nil {
				return err
			}
			if err := w.PutFloat(rec.Value); err != nil {
				return err
			}
		}
	case BedGraph:
		for _, rec := range s.Records {
			if err := w.PutInt(rec.Start); err != nil {
				return err
			}
			if err := w.PutInt(rec.End); err != nil {
				return err
			}
			if err := w.PutFloat(rec.Value); err != nil {
				return err
			}
		}
	default:
		return bbi.FormatError("wig section: encode unknown type", nil)
	}
	return nil
}
