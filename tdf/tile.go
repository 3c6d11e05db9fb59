package tdf

import (
	"encoding/binary"
	"fmt"

	"v.io/x/lib/vlog"

	"github.com/superbobry/big/bbi"
	"github.com/superbobry/big/romio"
)

// DatasetInfo is a parsed TDF dataset blob's fixed fields: attributes,
// declared data type (must be "float", §4.9), the tile grid's width, and
// the (offset, size) of every tile. A tile with a negative Offset has no
// data for that bin.
type DatasetInfo struct {
	Attributes  map[string]string
	DataType    string
	TileWidth   int32
	TileCount   int32
	TileOffsets []int64
	TileSizes   []int32
}

// Dataset parses and returns the dataset blob named name, or
// (nil, false, nil) if no such dataset exists.
func (r *Reader) Dataset(name string) (*DatasetInfo, bool, error) {
	e, ok := r.datasets.get(name)
	if !ok {
		return nil, false, nil
	}
	dr, err := r.buf.DuplicateErr()
	if err != nil {
		return nil, false, bbi.IOError("tdf: dataset", err)
	}
	dr.Seek(e.Offset)

	attrs, err := readAttributes(dr)
	if err != nil {
		return nil, false, err
	}
	dataType, err := dr.GetCString()
	if err != nil {
		return nil, false, bbi.IOError("tdf dataset: read dataType", err)
	}
	if dataType != "float" {
		return nil, false, bbi.FormatError("tdf dataset: unsupported dataType "+dataType, nil)
	}
	tileWidthF, err := dr.GetFloat()
	if err != nil {
		return nil, false, bbi.IOError("tdf dataset: read tileWidth", err)
	}
	tileCount, err := dr.GetInt()
	if err != nil {
		return nil, false, bbi.IOError("tdf dataset: read tileCount", err)
	}
	offsets := make([]int64, tileCount)
	sizes := make([]int32, tileCount)
	for i := int32(0); i < tileCount; i++ {
		off, err := dr.GetLong()
		if err != nil {
			return nil, false, bbi.IOError("tdf dataset: read tile offset", err)
		}
		size, err := dr.GetInt()
		if err != nil {
			return nil, false, bbi.IOError("tdf dataset: read tile size", err)
		}
		offsets[i] = off
		sizes[i] = size
	}

	return &DatasetInfo{
		Attributes:  attrs,
		DataType:    dataType,
		TileWidth:   int32(tileWidthF),
		TileCount:   tileCount,
		TileOffsets: offsets,
		TileSizes:   sizes,
	}, true, nil
}

// TileType identifies a decoded tile's layout. TDF has four tile
// encodings; bedWithName tiles decode as Bed, so there are three types.
type TileType uint8

const (
	FixedStep TileType = iota + 1
	VariableStep
	Bed
)

// Tile is one decoded TDF tile: a set of half-open bins sharing a common
// length across every track, plus each track's parallel value array.
type Tile struct {
	Type   TileType
	Starts []int32
	Ends   []int32
	Tracks [][]float32
}

// NumBins returns the number of bins this tile covers.
func (t *Tile) NumBins() int { return len(t.Starts) }

// Start returns the tile's first bin start, or 0 if it has no bins.
func (t *Tile) Start() int32 {
	if len(t.Starts) == 0 {
		return 0
	}
	return t.Starts[0]
}

// End returns the tile's last bin end, or 0 if it has no bins.
func (t *Tile) End() int32 {
	if len(t.Ends) == 0 {
		return 0
	}
	return t.Ends[len(t.Ends)-1]
}

// decodeTile decodes a single tile, dispatched on its leading C-string
// type tag. bedWithName is decoded as plain bed with the trailing name
// array dropped and a warning logged, per spec.md §9's third Open
// Question bullet (DESIGN.md records this as the final decision, not a
// carried-forward bug).
func decodeTile(r *romio.RomBuffer) (*Tile, error) {
	typ, err := r.GetCString()
	if err != nil {
		return nil, bbi.IOError("tdf tile: read type", err)
	}
	switch typ {
	case "fixedStep":
		return decodeFixedStepTile(r)
	case "variableStep":
		return decodeVariableStepTile(r)
	case "bed":
		return decodeBedTile(r, false)
	case "bedWithName":
		return decodeBedTile(r, true)
	default:
		return nil, bbi.FormatError("tdf tile: unknown type "+typ, nil)
	}
}

func decodeFixedStepTile(r *romio.RomBuffer) (*Tile, error) {
	start, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf fixedStep tile: read start", err)
	}
	spanF, err := r.GetFloat()
	if err != nil {
		return nil, bbi.IOError("tdf fixedStep tile: read span", err)
	}
	span := int32(spanF)
	nTracks, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf fixedStep tile: read nTracks", err)
	}
	nBins, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf fixedStep tile: read nBins", err)
	}

	starts := make([]int32, nBins)
	ends := make([]int32, nBins)
	for i := int32(0); i < nBins; i++ {
		starts[i] = start + i*span
		ends[i] = starts[i] + span
	}

	tracks, err := readTracks(r, int(nTracks), int(nBins))
	if err != nil {
		return nil, err
	}
	return &Tile{Type: FixedStep, Starts: starts, Ends: ends, Tracks: tracks}, nil
}

func decodeVariableStepTile(r *romio.RomBuffer) (*Tile, error) {
	// The leading "start" field is redundant with the per-bin positions
	// that follow; consumed only to advance the cursor.
	if _, err := r.GetInt(); err != nil {
		return nil, bbi.IOError("tdf variableStep tile: read start", err)
	}
	spanF, err := r.GetFloat()
	if err != nil {
		return nil, bbi.IOError("tdf variableStep tile: read span", err)
	}
	span := int32(spanF)
	nTracks, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf variableStep tile: read nTracks", err)
	}
	nBins, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf variableStep tile: read nBins", err)
	}
	positions, err := r.GetInts(int(nBins))
	if err != nil {
		return nil, bbi.IOError("tdf variableStep tile: read positions", err)
	}

	starts := make([]int32, nBins)
	ends := make([]int32, nBins)
	for i, pos := range positions {
		starts[i] = pos
		ends[i] = pos + span
	}

	tracks, err := readTracks(r, int(nTracks), int(nBins))
	if err != nil {
		return nil, err
	}
	return &Tile{Type: VariableStep, Starts: starts, Ends: ends, Tracks: tracks}, nil
}

func decodeBedTile(r *romio.RomBuffer, withName bool) (*Tile, error) {
	nBins, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf bed tile: read nBins", err)
	}
	starts, err := r.GetInts(int(nBins))
	if err != nil {
		return nil, bbi.IOError("tdf bed tile: read starts", err)
	}
	ends, err := r.GetInts(int(nBins))
	if err != nil {
		return nil, bbi.IOError("tdf bed tile: read ends", err)
	}
	nTracks, err := r.GetInt()
	if err != nil {
		return nil, bbi.IOError("tdf bed tile: read nTracks", err)
	}
	tracks, err := readTracks(r, int(nTracks), int(nBins))
	if err != nil {
		return nil, err
	}
	if withName {
		vlog.VI(1).Infof("tdf: bedWithName tile decoded as bed; dropping %d names", nBins)
		for i := int32(0); i < nBins; i++ {
			if _, err := r.GetCString(); err != nil {
				return nil, bbi.IOError("tdf bedWithName tile: read name", err)
			}
		}
	}
	return &Tile{Type: Bed, Starts: starts, Ends: ends, Tracks: tracks}, nil
}

func readTracks(r *romio.RomBuffer, nTracks, nBins int) ([][]float32, error) {
	tracks := make([][]float32, nTracks)
	for t := 0; t < nTracks; t++ {
		vals, err := r.GetFloats(nBins)
		if err != nil {
			return nil, bbi.IOError("tdf tile: read track values", err)
		}
		tracks[t] = vals
	}
	return tracks, nil
}

// Query returns every tile of dataset overlapping [startOffset, endOffset)
// (base-pair coordinates, per §4.9's "query(dataset, startOffset,
// endOffset)"), decompressed and decoded. Tiles with a negative on-disk
// offset (no data for that bin) are skipped.
func (r *Reader) Query(name string, startOffset, endOffset int32) ([]*Tile, error) {
	ds, ok, err := r.Dataset(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bbi.NoSuchElement("tdf: query", name)
	}
	if ds.TileWidth <= 0 {
		return nil, bbi.FormatError("tdf: query: non-positive tileWidth", nil)
	}

	firstIdx := startOffset / ds.TileWidth
	lastIdx := endOffset / ds.TileWidth
	if firstIdx < 0 {
		firstIdx = 0
	}
	if int(lastIdx) >= len(ds.TileOffsets) {
		lastIdx = int32(len(ds.TileOffsets)) - 1
	}

	var tiles []*Tile
	for i := firstIdx; i <= lastIdx; i++ {
		off := ds.TileOffsets[i]
		size := ds.TileSizes[i]
		if off < 0 {
			continue
		}
		tr, err := r.buf.DuplicateErr()
		if err != nil {
			return nil, bbi.IOError("tdf: query: duplicate", err)
		}
		var block *romio.RomBuffer
		if r.header.Compressed() {
			block, err = tr.Decompress(off, int64(size), romio.CompressionDeflate, 0)
			if err != nil {
				return nil, bbi.IOError("tdf: query: decompress tile", err)
			}
		} else {
			tr.Seek(off)
			raw, err := tr.GetBytes(int(size))
			if err != nil {
				return nil, bbi.IOError("tdf: query: read tile", err)
			}
			block = romio.NewBytesBuffer(raw, binary.LittleEndian)
		}
		tile, err := decodeTile(block)
		if err != nil {
			return nil, err
		}
		if tile.NumBins() == 0 {
			continue
		}
		if tile.End() <= startOffset || tile.Start() >= endOffset {
			continue
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}

// Bin is one query-filtered bin yielded by a TileIterator: its interval
// plus every track's value at that bin.
type Bin struct {
	Start  int32
	End    int32
	Values []float32
}

// TileIterator lazily walks the bins of a tile set in on-disk order,
// yielding only those overlapping the originating Summarize call's
// [start, end) range. This is the "lazy per-track filtered iterator" §4.9
// describes.
type TileIterator struct {
	tiles      []*Tile
	tileIdx    int
	binIdx     int
	start, end int32
	cur        Bin
}

// Scan advances to the next bin overlapping the query range.
func (it *TileIterator) Scan() bool {
	for it.tileIdx < len(it.tiles) {
		t := it.tiles[it.tileIdx]
		for it.binIdx < len(t.Starts) {
			i := it.binIdx
			it.binIdx++
			s, e := t.Starts[i], t.Ends[i]
			if e <= it.start || s >= it.end {
				continue
			}
			vals := make([]float32, len(t.Tracks))
			for ti, track := range t.Tracks {
				vals[ti] = track[i]
			}
			it.cur = Bin{Start: s, End: e, Values: vals}
			return true
		}
		it.tileIdx++
		it.binIdx = 0
	}
	return false
}

// Current returns the bin Scan last advanced to; valid only after Scan
// returns true.
func (it *TileIterator) Current() Bin { return it.cur }

// Close is a no-op; present for symmetry with Reader.Close.
func (it *TileIterator) Close() error { return nil }

// Summarize resolves the dataset name "/<chrom>/z<zoom>/<wf>" (using the
// file's first declared window function, falling back to "mean" if none
// is declared), falling back to "/<chrom>/raw" when that dataset is
// missing, and returns a lazy iterator over the bins of every tile in
// [start, end), per §4.9.
func (r *Reader) Summarize(chrom string, start, end int32, zoom int) (*TileIterator, error) {
	wf := "mean"
	if len(r.header.WindowFunctions) > 0 {
		wf = r.header.WindowFunctions[0]
	}
	name := fmt.Sprintf("/%s/z%d/%s", chrom, zoom, wf)
	if _, ok := r.datasets.get(name); !ok {
		name = fmt.Sprintf("/%s/raw", chrom)
	}
	tiles, err := r.Query(name, start, end)
	if err != nil {
		return nil, err
	}
	return &TileIterator{tiles: tiles, start: start, end: end}, nil
}
