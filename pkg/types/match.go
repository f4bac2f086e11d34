package types

import "fmt"

// ByteRange is an inclusive-exclusive [Start, End) byte range, always in
// global stream coordinates once stored (spec invariant I1).
type ByteRange struct {
	Start int64
	End   int64
}

// Contains reports whether offset falls within the range.
func (r ByteRange) Contains(offset int64) bool {
	return offset >= r.Start && offset < r.End
}

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Match is one occurrence of one pattern, recorded in global stream
// coordinates (I1). XorKey is non-nil only for XOR-keyed string patterns.
// TraceID is empty when extraction found no quoted substring on the
// matched line, or extraction was skipped (null/empty buffer).
type Match struct {
	PatternID int
	Range     ByteRange
	XorKey    *byte
	TraceID   string
}
