package bbi

import (
	"fmt"

	"github.com/grailbio/base/errors"
	pkgerrors "github.com/pkg/errors"
)

// Kind is the flat error-kind taxonomy every bbi/bigwig/bigbed/tdf failure
// is tagged with.
type Kind int

const (
	// KindIO covers underlying read/write failures.
	KindIO Kind = iota
	// KindFormat covers a wrong magic, an impossible field, or a truncated
	// section header.
	KindFormat
	// KindTruncated is a read past the end of a region.
	KindTruncated
	// KindUnsupportedVersion is a version field outside [3,5].
	KindUnsupportedVersion
	// KindUnsupportedCompression is a compression byte outside {0,1,2} or
	// snappy requested under version < 5.
	KindUnsupportedCompression
	// KindBadSignature is neither byte order matching the format magic.
	KindBadSignature
	// KindSortOrder is writer input violating the sorted/non-overlapping
	// invariant.
	KindSortOrder
	// KindDuplicateKey is a repeated chromosome name on write.
	KindDuplicateKey
	// KindNoSuchElement is a reader lookup miss: unknown chromosome, TDF
	// dataset, or TDF group.
	KindNoSuchElement
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IoError"
	case KindFormat:
		return "FormatError"
	case KindTruncated:
		return "TruncatedError"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindUnsupportedCompression:
		return "UnsupportedCompression"
	case KindBadSignature:
		return "BadSignature"
	case KindSortOrder:
		return "SortOrderError"
	case KindDuplicateKey:
		return "DuplicateKey"
	case KindNoSuchElement:
		return "NoSuchElement"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type every public bbi/bigwig/bigbed/tdf
// operation returns on failure. Kind lets callers branch on failure class
// without string-matching messages.
type Error struct {
	Kind    Kind
	Where   string
	Element string // populated for KindNoSuchElement
	err     error
}

func (e *Error) Error() string {
	if e.Element != "" {
		return fmt.Sprintf("%s: %s: %q", e.Kind, e.Where, e.Element)
	}
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Where, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Where)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause.
func (e *Error) Unwrap() error { return e.err }

// newError builds an *Error, wrapping err (if non-nil) with
// github.com/grailbio/base/errors for consistent "where" formatting in
// logs, mirroring the teacher's errors.E(err, where) convention.
func newError(kind Kind, where string, err error) *Error {
	if err != nil {
		err = errors.E(err, where)
	}
	return &Error{Kind: kind, Where: where, err: err}
}

// FormatError reports a structural problem at where: wrong magic, an
// impossible field value, or a header/section too short to parse.
func FormatError(where string, err error) *Error {
	return newError(KindFormat, where, err)
}

// IOError wraps an underlying read/write/seek failure.
func IOError(where string, err error) *Error {
	return newError(KindIO, where, err)
}

// NoSuchElement reports a reader lookup miss for element (a chromosome
// name, or a TDF dataset/group path), optionally carrying a
// did-you-mean suggestion appended to the message by the caller.
func NoSuchElement(where, element string) *Error {
	e := newError(KindNoSuchElement, where, nil)
	e.Element = element
	return e
}

// SortOrderError reports that writer input violated the
// sorted-then-non-overlapping invariant required by §4.8.
func SortOrderError(where string) *Error {
	return newError(KindSortOrder, where, nil)
}

// DuplicateKey reports a repeated chromosome name seen while writing a B+
// tree.
func DuplicateKey(name string) *Error {
	e := newError(KindDuplicateKey, "chrom B+ tree write", nil)
	e.Element = name
	return e
}

// BadSignature reports that neither byte order's reading of a file's
// leading bytes matched its expected magic.
func BadSignature(where string) *Error {
	return newError(KindBadSignature, where, nil)
}

// UnsupportedVersion reports a format version outside the supported range.
func UnsupportedVersion(where string, version int) *Error {
	return newError(KindUnsupportedVersion, fmt.Sprintf("%s: version %d", where, version), nil)
}

// UnsupportedCompression reports a compression kind the reader/writer
// cannot handle (an unknown byte, or snappy requested under a version
// that doesn't support it).
func UnsupportedCompression(where string) *Error {
	return newError(KindUnsupportedCompression, where, nil)
}

// TruncatedError reports a read past the end of a region.
func TruncatedError(where string) *Error {
	return newError(KindTruncated, where, nil)
}

// WithStack attaches a stack trace to err at a panic/recover boundary,
// mirroring encoding/fasta/fasta.go's pairing of grailbio/base/errors
// (caller-facing wrapping) with pkg/errors (stack capture for
// invariant-violation panics recovered at a package boundary).
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}
