package bbi

import "math"

// BigSummary is the running-stats monoid used by both the query path
// (Reader.summarize, Reader.totalSummary) and the zoom-pyramid writer
// (every zoom record is one BigSummary over its bin). The identity
// element has Count=0, MinValue=+Inf, MaxValue=-Inf, so Plus with any
// other summary returns that summary unchanged.
type BigSummary struct {
	Count      int64
	MinValue   float64
	MaxValue   float64
	Sum        float64
	SumSquares float64
}

// EmptySummary returns the identity element of Plus.
func EmptySummary() BigSummary {
	return BigSummary{MinValue: math.Inf(1), MaxValue: math.Inf(-1)}
}

// AddValue folds a single (span, value) observation into the summary:
// span positions each contributing value to Count/Sum/SumSquares.
func (s BigSummary) AddValue(span int64, value float64) BigSummary {
	s.Count += span
	s.Sum += float64(span) * value
	s.SumSquares += float64(span) * value * value
	if value < s.MinValue {
		s.MinValue = value
	}
	if value > s.MaxValue {
		s.MaxValue = value
	}
	return s
}

// Plus combines two summaries commutatively and associatively, so
// summaries of disjoint ranges can be merged in any order.
func (s BigSummary) Plus(o BigSummary) BigSummary {
	if s.Count == 0 {
		return o
	}
	if o.Count == 0 {
		return s
	}
	out := BigSummary{
		Count:      s.Count + o.Count,
		Sum:        s.Sum + o.Sum,
		SumSquares: s.SumSquares + o.SumSquares,
		MinValue:   s.MinValue,
		MaxValue:   s.MaxValue,
	}
	if o.MinValue < out.MinValue {
		out.MinValue = o.MinValue
	}
	if o.MaxValue > out.MaxValue {
		out.MaxValue = o.MaxValue
	}
	return out
}

// Mean returns Sum/Count, or 0 if Count is 0.
func (s BigSummary) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}
