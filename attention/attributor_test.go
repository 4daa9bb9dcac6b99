package attention

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// crossStep builds one decoding step with a single layer and, per beam, a
// single head carrying the given source-attention vector.
func crossStep(beamVectors ...[]float64) []BeamHeadAttention {
	beams := make(BeamHeadAttention, len(beamVectors))
	for i, v := range beamVectors {
		beams[i] = [][]float64{v}
	}
	return []BeamHeadAttention{beams}
}

func TestCrossDispersionReference(t *testing.T) {
	// Two documents at [0,4) and [4,8); the attention vector sums to document
	// attention [0.4, 0.6]. After softmax the distribution is
	// [e^0.4, e^0.6]/Z, whose population std dev is tanh(0.1)/2.
	vec := []float64{0.1, 0.1, 0.1, 0.1, 0.3, 0.1, 0.1, 0.1}
	out := &Output{
		CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
		BeamBacktrace:   []int{0},
	}
	rec, err := Attribute(out, []int{0, 4}, 8, Options{ComputeCross: true})
	require.NoError(t, err)

	want := math.Tanh(0.1) / 2
	assert.InDelta(t, want, rec.CrossDispersion, 1e-12)
}

func TestCrossDispersionBeamBacktrace(t *testing.T) {
	// Beam slots are re-permuted every step: step 0 must read beam 1 (the
	// skewed vector), step 1 beam 0 (uniform, zero dispersion).
	uniform := []float64{0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125}
	skewed := []float64{0.1, 0.1, 0.1, 0.1, 0.3, 0.1, 0.1, 0.1}
	out := &Output{
		CrossAttentions: [][]BeamHeadAttention{
			crossStep(uniform, skewed),
			crossStep(uniform, skewed),
		},
		BeamBacktrace: []int{1, 0},
	}
	rec, err := Attribute(out, []int{0, 4}, 8, Options{ComputeCross: true})
	require.NoError(t, err)

	want := (math.Tanh(0.1)/2 + 0) / 2
	assert.InDelta(t, want, rec.CrossDispersion, 1e-12)
}

func TestCrossDispersionAveragesLayersAndHeads(t *testing.T) {
	// Two layers, each one beam with two heads. The four vectors average to
	// the reference vector, so the result matches the single-vector case.
	a := []float64{0.1, 0.1, 0.1, 0.1, 0.3, 0.1, 0.1, 0.1}
	b := []float64{0.2, 0.0, 0.2, 0.0, 0.2, 0.2, 0.0, 0.2}
	c := []float64{0.0, 0.2, 0.0, 0.2, 0.4, 0.0, 0.2, 0.0}
	layer1 := BeamHeadAttention{{a, b}}
	layer2 := BeamHeadAttention{{c, a}}
	out := &Output{
		CrossAttentions: [][]BeamHeadAttention{{layer1, layer2}},
		BeamBacktrace:   []int{0},
	}

	rec, err := Attribute(out, []int{0, 4}, 8, Options{ComputeCross: true})
	require.NoError(t, err)

	avg := make([]float64, 8)
	for i := range avg {
		avg[i] = (a[i] + b[i] + c[i] + a[i]) / 4
	}
	docs := []float64{0, 0}
	for i, v := range avg {
		if i < 4 {
			docs[0] += v
		} else {
			docs[1] += v
		}
	}
	want := popStdDev(softmax(docs))
	assert.InDelta(t, want, rec.CrossDispersion, 1e-12)
}

func TestCrossIgnoresStepsPastBacktrace(t *testing.T) {
	vec := []float64{0.5, 0.5}
	garbage := []BeamHeadAttention{{{[]float64{1, 2, 3, 4, 5}}}} // wrong srcLen, must never be read
	out := &Output{
		CrossAttentions: [][]BeamHeadAttention{crossStep(vec), garbage},
		BeamBacktrace:   []int{0},
	}
	_, err := Attribute(out, []int{0, 1}, 2, Options{ComputeCross: true})
	assert.NoError(t, err)
}

func TestSingleDocumentDispersionIsZero(t *testing.T) {
	vec := []float64{0.2, 0.3, 0.5}
	selfAttn := HeadSquareAttention{{
		{0.5, 0.3, 0.2},
		{0.1, 0.8, 0.1},
		{0.3, 0.3, 0.4},
	}}
	out := &Output{
		CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
		SelfAttentions:  []HeadSquareAttention{selfAttn},
		BeamBacktrace:   []int{0},
	}
	rec, err := Attribute(out, []int{0}, 3, Options{ComputeCross: true, ComputeSelf: true})
	require.NoError(t, err)

	assert.Zero(t, rec.CrossDispersion)
	assert.Zero(t, rec.SelfDispersion)
	// The lone document's marker row sums to its full attention mass.
	assert.InDelta(t, 1.0, rec.SelfDocAttention, 1e-12)
}

func TestSelfDispersionReference(t *testing.T) {
	// Documents at [0,2) and [2,4). Marker rows: position 0 sums to
	// [0.7, 0.3], position 2 to [0.3, 0.7]. Diagonal average is 0.7 and each
	// row's softmax std dev is tanh(0.2)/2.
	selfAttn := HeadSquareAttention{{
		{0.4, 0.3, 0.2, 0.1},
		{0.25, 0.25, 0.25, 0.25},
		{0.1, 0.2, 0.3, 0.4},
		{0.25, 0.25, 0.25, 0.25},
	}}
	out := &Output{SelfAttentions: []HeadSquareAttention{selfAttn}}

	rec, err := Attribute(out, []int{0, 2}, 4, Options{ComputeSelf: true})
	require.NoError(t, err)

	assert.InDelta(t, 0.7, rec.SelfDocAttention, 1e-12)
	assert.InDelta(t, math.Tanh(0.2)/2, rec.SelfDispersion, 1e-12)
}

func TestAttributeEmptyBoundaries(t *testing.T) {
	out := &Output{}
	_, err := Attribute(out, nil, 8, Options{ComputeCross: true})
	assert.ErrorIs(t, err, ErrUndefinedDispersion)
}

func TestAttributeOptionValidation(t *testing.T) {
	_, err := Attribute(&Output{}, []int{0}, 8, Options{})
	assert.Error(t, err)
}

func TestAttributeShapeErrors(t *testing.T) {
	vec := []float64{0.5, 0.5}

	t.Run("beam index outside beam width", func(t *testing.T) {
		out := &Output{
			CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
			BeamBacktrace:   []int{3},
		}
		_, err := Attribute(out, []int{0}, 2, Options{ComputeCross: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "beam index 3")
		assert.Contains(t, err.Error(), "step 0")
	})

	t.Run("source length mismatch", func(t *testing.T) {
		out := &Output{
			CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
			BeamBacktrace:   []int{0},
		}
		_, err := Attribute(out, []int{0}, 5, Options{ComputeCross: true})
		assert.Error(t, err)
	})

	t.Run("backtrace longer than captured steps", func(t *testing.T) {
		out := &Output{
			CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
			BeamBacktrace:   []int{0, 0},
		}
		_, err := Attribute(out, []int{0}, 2, Options{ComputeCross: true})
		assert.Error(t, err)
	})

	t.Run("boundary outside sequence", func(t *testing.T) {
		out := &Output{
			CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
			BeamBacktrace:   []int{0},
		}
		_, err := Attribute(out, []int{0, 9}, 2, Options{ComputeCross: true})
		assert.Error(t, err)
	})

	t.Run("non increasing boundaries", func(t *testing.T) {
		out := &Output{
			CrossAttentions: [][]BeamHeadAttention{crossStep(vec)},
			BeamBacktrace:   []int{0},
		}
		_, err := Attribute(out, []int{0, 0}, 2, Options{ComputeCross: true})
		assert.Error(t, err)
	})

	t.Run("missing self attention", func(t *testing.T) {
		out := &Output{}
		_, err := Attribute(out, []int{0}, 2, Options{ComputeSelf: true})
		assert.Error(t, err)
	})
}
