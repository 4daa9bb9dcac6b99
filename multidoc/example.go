package multidoc

// Example is one encoded multi-document example: the flattened source token
// sequence, the boundary offset of each surviving passage and the encoded
// target labels.
//
// Invariants: BoundaryOffsets[0] == 0, offsets are strictly increasing, every
// offset is below len(TokenIDs), and at least one offset is present (examples
// with zero usable passages are never emitted).
type Example struct {
	TokenIDs        []int
	BoundaryOffsets []int
	LabelIDs        []int
}

// DocumentCount returns the number of passages that survived encoding.
func (e *Example) DocumentCount() int {
	return len(e.BoundaryOffsets)
}

// Segments returns the token ids of each document segment, marker included.
// The last segment runs to the end of the sequence and therefore carries the
// terminal marker too.
func (e *Example) Segments() [][]int {
	segments := make([][]int, 0, len(e.BoundaryOffsets))
	for i, start := range e.BoundaryOffsets {
		end := len(e.TokenIDs)
		if i+1 < len(e.BoundaryOffsets) {
			end = e.BoundaryOffsets[i+1]
		}
		segments = append(segments, e.TokenIDs[start:end])
	}
	return segments
}
