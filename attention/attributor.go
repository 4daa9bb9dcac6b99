package attention

import (
	"math"

	"github.com/pkg/errors"
)

// ErrUndefinedDispersion reports an example whose boundary offsets cannot
// support a document-level distribution (no documents at all). Callers skip
// the example; a shorter output list is their decision, never a crash.
var ErrUndefinedDispersion = errors.New("dispersion undefined: no document boundaries")

// Attribute reduces one example's generation output to document-level
// dispersion scalars. boundaries are the document-start offsets into the
// source sequence of length srcLen; the last document's segment runs to
// srcLen.
//
// Tensor-shape mismatches are programming errors and fail fast with an error
// naming the offending step. A single-document example is well defined and
// yields zero dispersion.
func Attribute(out *Output, boundaries []int, srcLen int, opts Options) (Record, error) {
	var rec Record
	if err := opts.Validate(); err != nil {
		return rec, err
	}
	if len(boundaries) == 0 {
		return rec, ErrUndefinedDispersion
	}
	if err := checkBoundaries(boundaries, srcLen); err != nil {
		return rec, err
	}

	if opts.ComputeCross {
		cross, err := crossDispersion(out, boundaries, srcLen)
		if err != nil {
			return rec, errors.Wrap(err, "cross-attention analysis")
		}
		rec.CrossDispersion = cross
	}
	if opts.ComputeSelf {
		selfDisp, selfDoc, err := selfDispersion(out, boundaries, srcLen)
		if err != nil {
			return rec, errors.Wrap(err, "self-attention analysis")
		}
		rec.SelfDispersion = selfDisp
		rec.SelfDocAttention = selfDoc
	}
	return rec, nil
}

func checkBoundaries(boundaries []int, srcLen int) error {
	prev := -1
	for i, off := range boundaries {
		if off <= prev {
			return errors.Errorf("boundary offsets must be strictly increasing, got %d after %d at index %d", off, prev, i)
		}
		if off >= srcLen {
			return errors.Errorf("boundary offset %d at index %d is outside the source sequence of length %d", off, i, srcLen)
		}
		prev = off
	}
	return nil
}

// crossDispersion follows the final hypothesis through the beam backtrace,
// collapses each step's attention to a per-document distribution and averages
// the per-token population standard deviation.
func crossDispersion(out *Output, boundaries []int, srcLen int) (float64, error) {
	genLen := len(out.BeamBacktrace)
	if genLen == 0 {
		return 0, errors.New("beam backtrace is empty")
	}
	if len(out.CrossAttentions) < genLen {
		return 0, errors.Errorf("beam backtrace has %d steps but only %d cross-attention steps were captured",
			genLen, len(out.CrossAttentions))
	}

	var stdSum float64
	for step := 0; step < genLen; step++ {
		vec, err := tokenAttention(out.CrossAttentions[step], out.BeamBacktrace[step], step, srcLen)
		if err != nil {
			return 0, err
		}
		docAttn := segmentSums(vec, boundaries, srcLen)
		stdSum += popStdDev(softmax(docAttn))
	}
	return stdSum / float64(genLen), nil
}

// tokenAttention averages one step's attention across layers, selects the
// ancestor beam slot and averages across heads, yielding one source-length
// vector for the generated token.
func tokenAttention(layers []BeamHeadAttention, beam, step, srcLen int) ([]float64, error) {
	if len(layers) == 0 {
		return nil, errors.Errorf("step %d: no attention layers captured", step)
	}
	vec := make([]float64, srcLen)
	heads := 0
	for li, layer := range layers {
		if beam < 0 || beam >= len(layer) {
			return nil, errors.Errorf("step %d: beam index %d outside beam width %d (layer %d)",
				step, beam, len(layer), li)
		}
		beamAttn := layer[beam]
		if li == 0 {
			heads = len(beamAttn)
			if heads == 0 {
				return nil, errors.Errorf("step %d: no attention heads captured", step)
			}
		} else if len(beamAttn) != heads {
			return nil, errors.Errorf("step %d: layer %d has %d heads, expected %d", step, li, len(beamAttn), heads)
		}
		for hi, headAttn := range beamAttn {
			if len(headAttn) != srcLen {
				return nil, errors.Errorf("step %d: layer %d head %d covers %d source positions, expected %d",
					step, li, hi, len(headAttn), srcLen)
			}
			for s, a := range headAttn {
				vec[s] += a
			}
		}
	}
	norm := float64(len(layers) * heads)
	for s := range vec {
		vec[s] /= norm
	}
	return vec, nil
}

// selfDispersion reduces the encoder self-attention to a document-by-document
// matrix: row i is how much document i's start marker attends to each
// document's tokens. It returns the dispersion of the row distributions and
// the average of the matrix diagonal.
func selfDispersion(out *Output, boundaries []int, srcLen int) (float64, float64, error) {
	avg, err := averageSelfAttention(out.SelfAttentions, srcLen)
	if err != nil {
		return 0, 0, err
	}

	docCount := len(boundaries)
	docMatrix := make([][]float64, docCount)
	for i, off := range boundaries {
		docMatrix[i] = segmentSums(avg[off], boundaries, srcLen)
	}

	var diagSum, stdSum float64
	for i, row := range docMatrix {
		diagSum += row[i]
		stdSum += popStdDev(softmax(row))
	}
	return stdSum / float64(docCount), diagSum / float64(docCount), nil
}

// averageSelfAttention averages self-attention across layers, then heads,
// yielding a [srcLen][srcLen] matrix.
func averageSelfAttention(layers []HeadSquareAttention, srcLen int) ([][]float64, error) {
	if len(layers) == 0 {
		return nil, errors.New("no self-attention layers captured")
	}
	avg := make([][]float64, srcLen)
	for i := range avg {
		avg[i] = make([]float64, srcLen)
	}
	heads := 0
	for li, layer := range layers {
		if li == 0 {
			heads = len(layer)
			if heads == 0 {
				return nil, errors.New("no self-attention heads captured")
			}
		} else if len(layer) != heads {
			return nil, errors.Errorf("self-attention layer %d has %d heads, expected %d", li, len(layer), heads)
		}
		for hi, headAttn := range layer {
			if len(headAttn) != srcLen {
				return nil, errors.Errorf("self-attention layer %d head %d has %d rows, expected %d",
					li, hi, len(headAttn), srcLen)
			}
			for r, row := range headAttn {
				if len(row) != srcLen {
					return nil, errors.Errorf("self-attention layer %d head %d row %d covers %d source positions, expected %d",
						li, hi, r, len(row), srcLen)
				}
				for c, a := range row {
					avg[r][c] += a
				}
			}
		}
	}
	norm := float64(len(layers) * heads)
	for r := range avg {
		for c := range avg[r] {
			avg[r][c] /= norm
		}
	}
	return avg, nil
}

// segmentSums sums attention mass within each document segment [start, end),
// the last segment ending at srcLen.
func segmentSums(vec []float64, boundaries []int, srcLen int) []float64 {
	sums := make([]float64, len(boundaries))
	for i, start := range boundaries {
		end := srcLen
		if i+1 < len(boundaries) {
			end = boundaries[i+1]
		}
		var s float64
		for p := start; p < end; p++ {
			s += vec[p]
		}
		sums[i] = s
	}
	return sums
}

// softmax normalizes a row to a probability distribution, shifting by the
// maximum for numerical stability.
func softmax(xs []float64) []float64 {
	maxX := math.Inf(-1)
	for _, x := range xs {
		if x > maxX {
			maxX = x
		}
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		e := math.Exp(x - maxX)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// popStdDev is the population standard deviation: no variance is possible for
// a single-element distribution, so a lone document yields exactly zero.
func popStdDev(xs []float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(xs)))
}
