package bigbed

import (
	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// Record is one decoded BED feature: a half-open interval plus its
// tab-separated "rest" fields (name, score, strand, ... — whatever the
// BED schema in use defines), carried through verbatim as a string.
type Record struct {
	ChromIx int32
	Start   int32
	End     int32
	Rest    string
}

// writer is the subset of romio.OrderedDataOutput/romio.CompressedBlock
// that EncodeRecord needs.
type writer interface {
	PutInt(int32) error
	PutCString(s string) error
}

// DecodeBlock decodes every record in a block with no query filtering
// (the writer's zoom pyramid is built from in-memory records and does not
// call it). Records within a
// block are sorted by (chromIx, start) per §4.7.
func DecodeBlock(r *romio.RomBuffer) ([]Record, error) {
	var records []Record
	for r.Pos() < r.Len() {
		rec, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(r *romio.RomBuffer) (Record, error) {
	chromIx, err := r.GetInt()
	if err != nil {
		return Record{}, bbi.IOError("bed record: read chromIx", err)
	}
	start, err := r.GetInt()
	if err != nil {
		return Record{}, bbi.IOError("bed record: read start", err)
	}
	end, err := r.GetInt()
	if err != nil {
		return Record{}, bbi.IOError("bed record: read end", err)
	}
	rest, err := r.GetCString()
	if err != nil {
		return Record{}, bbi.IOError("bed record: read rest", err)
	}
	return Record{ChromIx: chromIx, Start: start, End: end, Rest: rest}, nil
}

// consistent is identical to bigwig's §4.6 predicate, generalized over
// plain (start, end) pairs rather than WigSection records: intersecting
// query when overlaps is true, fully contained in it otherwise.
func consistent(start, end int32, query bbi.Interval, overlaps bool) bool {
	if overlaps {
		return start < query.End && end >= query.Start
	}
	return start >= query.Start && end < query.End
}

// QueryBlock decodes a single block, keeping only records consistent with
// query, short-circuiting the same way §4.6/§4.7 specify: once a record
// has matched, the first subsequent non-match ends the decode (records
// are sorted by start within a chromosome, so a non-match cannot be
// followed by a later match).
func QueryBlock(r *romio.RomBuffer, query bbi.Interval, overlaps bool) ([]Record, error) {
	var records []Record
	matched := false
	for r.Pos() < r.Len() {
		rec, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		if rec.ChromIx != query.ChromIx {
			if matched {
				break
			}
			continue
		}
		if consistent(rec.Start, rec.End, query, overlaps) {
			records = append(records, rec)
			matched = true
			continue
		}
		if matched {
			break
		}
	}
	return records, nil
}

// EncodeRecord writes rec in the on-disk layout decodeRecord expects.
func EncodeRecord(w writer, rec Record) error {
	if err := w.PutInt(rec.ChromIx); err != nil {
		return err
	}
	if err := w.PutInt(rec.Start); err != nil {
		return err
	}
	if err := w.PutInt(rec.End); err != nil {
		return err
	}
	return w.PutCString(rec.Rest)
}
