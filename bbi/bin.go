package bbi

import "github.com/superbobry/big/interval"

// BinBounds returns numBins+1 boundary positions splitting [start, end)
// into numBins near-equal-width bins: integer-division rounding makes
// widths differ by at most one base, with the wider bins toward the end.
func BinBounds(start, end int32, numBins int) []int32 {
	bounds := make([]int32, numBins+1)
	span := int64(end - start)
	for i := 0; i <= numBins; i++ {
		bounds[i] = start + int32(span*int64(i)/int64(numBins))
	}
	return bounds
}

// BinIndex returns which of the len(bounds)-1 bins (as returned by
// BinBounds) pos falls into, clamped to the valid range. Grounded on
// interval.SearchPosTypes/EndpointIndex's "search for pos+1" convention
// (interval/endpoint_index.go) rather than a hand-rolled binary search:
// the bin ends form exactly the kind of sorted endpoint sequence that
// package scans.
func BinIndex(bounds []int32, pos int32) int {
	n := len(bounds) - 1
	ends := make([]interval.PosType, n)
	for i := 0; i < n; i++ {
		ends[i] = interval.PosType(bounds[i+1])
	}
	idx := int(interval.SearchPosTypes(ends, interval.PosType(pos)+1))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
