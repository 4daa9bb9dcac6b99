package multidoc

import (
	"k8s.io/klog/v2"
)

// RawExample is one unencoded source/target pair as handed over by the dataset
// collaborator.
type RawExample struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Batch is a rectangular encoded batch. All three matrices have one row per
// kept example; padding slots carry sentinel values (pad token id for tokens,
// BoundaryPad for offsets, LabelIgnore for masked labels) so consumers can
// tell padding from data unambiguously.
type Batch struct {
	TokenIDs        [][]int `json:"token_ids"`
	BoundaryOffsets [][]int `json:"boundary_offsets"`
	LabelIDs        [][]int `json:"label_ids"`

	// Dropped counts malformed examples excluded from the batch.
	Dropped int `json:"dropped,omitempty"`
}

// PadBoundaries right-pads every boundary-offset list with BoundaryPad to the
// maximum length in the batch. A batch where every list is empty is returned
// unchanged: a degenerate case, not an error.
func PadBoundaries(lists [][]int) [][]int {
	maxLen := 0
	for _, l := range lists {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}
	if maxLen == 0 {
		return lists
	}
	padded := make([][]int, len(lists))
	for i, l := range lists {
		row := make([]int, maxLen)
		copy(row, l)
		for j := len(l); j < maxLen; j++ {
			row[j] = BoundaryPad
		}
		padded[i] = row
	}
	return padded
}

// MaskLabels replaces every occurrence of the pad token id with LabelIgnore,
// elementwise, so fixed-length padding does not contribute to the loss.
func MaskLabels(labels []int, padID int) []int {
	masked := make([]int, len(labels))
	for i, id := range labels {
		if id == padID {
			masked[i] = LabelIgnore
		} else {
			masked[i] = id
		}
	}
	return masked
}

// EncodeBatch encodes a batch of raw examples into a rectangular Batch.
// Malformed examples (no usable passages) are reported and skipped; any other
// encoding failure aborts the batch.
func (e *Encoder) EncodeBatch(raw []RawExample) (*Batch, error) {
	batch := &Batch{}
	examples := make([]*Example, 0, len(raw))
	for _, r := range raw {
		ex, err := e.Encode(r.Source, r.Target)
		if err != nil {
			if err == ErrNoPassages {
				klog.Warningf("dropping example with no usable passages: source=%q target=%q",
					clip(r.Source, 120), clip(r.Target, 120))
				batch.Dropped++
				continue
			}
			return nil, err
		}
		examples = append(examples, ex)
	}
	return e.collate(batch, examples), nil
}

// Collate assembles already encoded examples into a rectangular Batch. It is
// the dynamic-padding counterpart of EncodeBatch for callers that encoded in
// parallel with EncodeAll.
func (e *Encoder) Collate(examples []*Example) *Batch {
	return e.collate(&Batch{}, examples)
}

func (e *Encoder) collate(batch *Batch, examples []*Example) *Batch {
	tokenWidth, labelWidth := 0, 0
	if e.cfg.PadToMaxLength {
		tokenWidth, labelWidth = e.cfg.GlobalMaxLen, e.cfg.MaxTargetLen
	} else {
		for _, ex := range examples {
			if len(ex.TokenIDs) > tokenWidth {
				tokenWidth = len(ex.TokenIDs)
			}
			if len(ex.LabelIDs) > labelWidth {
				labelWidth = len(ex.LabelIDs)
			}
		}
	}

	boundaries := make([][]int, 0, len(examples))
	for _, ex := range examples {
		batch.TokenIDs = append(batch.TokenIDs, padRow(ex.TokenIDs, tokenWidth, e.padID))
		labels := padRow(ex.LabelIDs, labelWidth, e.padID)
		if e.cfg.IgnorePadInLoss {
			labels = MaskLabels(labels, e.padID)
		}
		batch.LabelIDs = append(batch.LabelIDs, labels)
		boundaries = append(boundaries, ex.BoundaryOffsets)
	}
	batch.BoundaryOffsets = PadBoundaries(boundaries)
	return batch
}

func padRow(ids []int, width, padID int) []int {
	if width < len(ids) {
		width = len(ids)
	}
	row := make([]int, width)
	copy(row, ids)
	for i := len(ids); i < width; i++ {
		row[i] = padID
	}
	return row
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
