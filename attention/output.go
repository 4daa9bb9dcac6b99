// Package attention reconstructs document-level attention distributions from
// the raw per-step, per-beam, per-layer attention tensors produced during
// beam-search decoding, and reduces them to per-example dispersion scalars
// used as a document-importance signal.
package attention

import (
	"github.com/pkg/errors"
)

// BeamHeadAttention is one step of cross-attention for one layer, indexed
// [beam][head][sourcePosition].
type BeamHeadAttention [][][]float64

// HeadSquareAttention is encoder self-attention for one layer, indexed
// [head][sourcePosition][sourcePosition].
type HeadSquareAttention [][][]float64

// Output is the raw generation output for a single example, handed off as an
// immutable snapshot once decoding finishes. The analyzer never mutates it.
type Output struct {
	// Sequences holds the emitted token ids of the final hypothesis.
	Sequences []int

	// CrossAttentions is indexed [step][layer]. Beam search may finalize
	// hypotheses before the last raw step, so this list can be longer than
	// BeamBacktrace; only the first len(BeamBacktrace) steps are attributed.
	CrossAttentions [][]BeamHeadAttention

	// SelfAttentions is the encoder self-attention, indexed [layer].
	SelfAttentions []HeadSquareAttention

	// BeamBacktrace records, per generated token, the beam slot that produced
	// it. Beam slots are re-permuted every decoding step, so each step's
	// attention tensor must be re-indexed through this backtrace to follow
	// one logical hypothesis.
	BeamBacktrace []int
}

// Options selects which analyses to run. Construct once; Validate rejects the
// empty combination before any processing begins.
type Options struct {
	ComputeCross bool
	ComputeSelf  bool
}

// Validate rejects an option set that selects no analysis.
func (o Options) Validate() error {
	if !o.ComputeCross && !o.ComputeSelf {
		return errors.New("attention analysis requested with neither cross nor self attention selected")
	}
	return nil
}

// Record holds the per-example analysis scalars. Only the fields selected by
// the Options passed to Attribute are meaningful.
type Record struct {
	// CrossDispersion is the mean population standard deviation of the
	// softmax-normalized per-token attention distribution over documents.
	// Higher values mean generation attends unevenly to few documents.
	CrossDispersion float64

	// SelfDispersion is the analogous scalar for encoder self-attention
	// between document-start markers.
	SelfDispersion float64

	// SelfDocAttention is the average attention mass each document's marker
	// puts on its own content.
	SelfDocAttention float64
}
