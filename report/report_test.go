package report

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docattn/go-docattn/attention"
)

func TestFormatSections(t *testing.T) {
	a := &Analysis{
		SelfStdDev:  []float64{0.1, 0.25},
		SelfDocAvg:  []float64{0.7, 0.5},
		CrossStdDev: []float64{0.05},
	}
	got := a.Format()
	want := "encoder self attn std dev:\n[0.1, 0.25]\n" +
		"encoder self doc attn avg:\n[0.7, 0.5]\n" +
		"decoder cross attn std dev:\n[0.05]\n"
	assert.Equal(t, want, got)
}

func TestWriteReadRoundTrip(t *testing.T) {
	a := &Analysis{
		SelfStdDev:  []float64{0.125, 0.0625, 0.5},
		SelfDocAvg:  []float64{0.75, 1.0, 0.25},
		CrossStdDev: []float64{0.03125, 0.015625, 0.5},
	}
	path := filepath.Join(t.TempDir(), "analysis.txt")
	require.NoError(t, a.Write(path))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.SelfStdDev, got.SelfStdDev)
	assert.Equal(t, a.SelfDocAvg, got.SelfDocAvg)
	assert.Equal(t, a.CrossStdDev, got.CrossStdDev)
}

func TestParseEmptySeries(t *testing.T) {
	text := "encoder self attn std dev:\n[]\n" +
		"encoder self doc attn avg:\n[]\n" +
		"decoder cross attn std dev:\n[0.5]\n"
	a, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	assert.Empty(t, a.SelfStdDev)
	assert.Empty(t, a.SelfDocAvg)
	assert.Equal(t, []float64{0.5}, a.CrossStdDev)
}

func TestParseRejectsMalformedList(t *testing.T) {
	_, err := Parse(strings.NewReader("encoder self attn std dev:\n0.1, 0.2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed scalar list")
}

func TestParseRejectsStrayLine(t *testing.T) {
	_, err := Parse(strings.NewReader("[0.1]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside any section")
}

func TestAddSelectsSeries(t *testing.T) {
	rec := attention.Record{
		CrossDispersion:  0.1,
		SelfDispersion:   0.2,
		SelfDocAttention: 0.9,
	}

	var both Analysis
	both.Add(rec, attention.Options{ComputeCross: true, ComputeSelf: true})
	assert.Equal(t, []float64{0.1}, both.CrossStdDev)
	assert.Equal(t, []float64{0.2}, both.SelfStdDev)
	assert.Equal(t, []float64{0.9}, both.SelfDocAvg)

	var crossOnly Analysis
	crossOnly.Add(rec, attention.Options{ComputeCross: true})
	assert.Equal(t, []float64{0.1}, crossOnly.CrossStdDev)
	assert.Empty(t, crossOnly.SelfStdDev)
	assert.Empty(t, crossOnly.SelfDocAvg)
}
