package gendump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docattn/go-docattn/attention"
)

// testDump builds a small two-document dump with values exactly representable
// in float32, so the round trip compares equal.
func testDump() *Dump {
	step0 := []attention.BeamHeadAttention{
		// layer 0: two beams, two heads.
		{
			{{0.25, 0.25, 0.25, 0.25}, {0.5, 0.25, 0.125, 0.125}},
			{{0.125, 0.125, 0.25, 0.5}, {0.25, 0.5, 0.125, 0.125}},
		},
	}
	step1 := []attention.BeamHeadAttention{
		{
			{{0.5, 0.125, 0.25, 0.125}, {0.25, 0.25, 0.25, 0.25}},
			{{0.125, 0.5, 0.25, 0.125}, {0.125, 0.125, 0.5, 0.25}},
		},
	}
	selfAttn := []attention.HeadSquareAttention{
		{
			{
				{0.25, 0.25, 0.25, 0.25},
				{0.5, 0.125, 0.25, 0.125},
				{0.125, 0.25, 0.5, 0.125},
				{0.25, 0.125, 0.125, 0.5},
			},
		},
	}
	return &Dump{
		Output: &attention.Output{
			Sequences:       []int{1, 42, 7, 2},
			CrossAttentions: [][]attention.BeamHeadAttention{step0, step1},
			SelfAttentions:  selfAttn,
			BeamBacktrace:   []int{1, 0},
		},
		Boundaries: []int{0, 2},
		SrcLen:     4,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example_0.safetensors")
	want := testDump()
	require.NoError(t, Write(path, want))

	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, want.Output.Sequences, got.Output.Sequences)
	assert.Equal(t, want.Output.BeamBacktrace, got.Output.BeamBacktrace)
	assert.Equal(t, want.Boundaries, got.Boundaries)
	assert.Equal(t, want.SrcLen, got.SrcLen)
	assert.Equal(t, want.Output.CrossAttentions, got.Output.CrossAttentions)
	assert.Equal(t, want.Output.SelfAttentions, got.Output.SelfAttentions)
}

func TestReadDumpFeedsAttribution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example_0.safetensors")
	require.NoError(t, Write(path, testDump()))

	d, err := Read(path)
	require.NoError(t, err)

	rec, err := attention.Attribute(d.Output, d.Boundaries, d.SrcLen,
		attention.Options{ComputeCross: true, ComputeSelf: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.CrossDispersion, 0.0)
	assert.GreaterOrEqual(t, rec.SelfDispersion, 0.0)
}

func TestReadTensorMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.safetensors")
	require.NoError(t, Write(path, testDump()))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	meta, ok := r.Header.Tensors["cross_attentions.0.0"]
	require.True(t, ok)
	assert.Equal(t, "F32", meta.Dtype)
	assert.Equal(t, []int{2, 2, 1, 4}, meta.Shape)
	assert.Equal(t, int64(16), meta.NumElements())
	assert.Equal(t, "gendump.v1", r.Header.Metadata["format"])

	tensor, err := r.ReadTensor("cross_attentions.0.0")
	require.NoError(t, err)
	assert.NotNil(t, tensor)

	_, err = r.ReadTensor("no_such_tensor")
	assert.Error(t, err)
}

func TestReadRejectsDumpWithoutAttention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.safetensors")
	d := testDump()
	d.Output.CrossAttentions = nil
	d.Output.SelfAttentions = nil
	require.NoError(t, Write(path, d))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither cross- nor self-attention")
}

func TestReadRejectsCorruptHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.safetensors")
	require.NoError(t, os.WriteFile(path, []byte("\x10\x00\x00\x00\x00\x00\x00\x00not json at all!"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestReadRejectsSparseCrossGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.safetensors")
	d := testDump()
	// Two steps with differing layer counts produce a sparse grid.
	d.Output.CrossAttentions[1] = append(d.Output.CrossAttentions[1], d.Output.CrossAttentions[1][0])
	require.NoError(t, Write(path, d))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing cross-attention tensor")
}
