package gendump

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/docattn/go-docattn/attention"
)

// Tensor names inside a dump file. Cross-attention tensors carry their step
// and layer index in the name; encoder self-attention its layer index.
const (
	tensorSequences    = "sequences"
	tensorBeamIndices  = "beam_indices"
	tensorSepPositions = "sep_positions"
	crossPrefix        = "cross_attentions."
	selfPrefix         = "encoder_attentions."
)

// formatVersion is recorded in the dump's __metadata__ section.
const formatVersion = "gendump.v1"

// Dump bundles everything the analyzer needs for one example: the raw
// generation output, the document boundary offsets and the source sequence
// length.
type Dump struct {
	Output     *attention.Output
	Boundaries []int
	SrcLen     int
}

func crossName(step, layer int) string {
	return fmt.Sprintf("%s%d.%d", crossPrefix, step, layer)
}

func selfName(layer int) string {
	return fmt.Sprintf("%s%d", selfPrefix, layer)
}

// Read opens, reads and closes a dump file.
func Read(path string) (*Dump, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadDump()
}

// ReadDump reconstructs the Dump from the mapped file.
func (r *Reader) ReadDump() (*Dump, error) {
	sequences, err := r.readInts(tensorSequences)
	if err != nil {
		return nil, err
	}
	backtrace, err := r.readInts(tensorBeamIndices)
	if err != nil {
		return nil, err
	}
	boundaries, err := r.readInts(tensorSepPositions)
	if err != nil {
		return nil, err
	}

	cross, crossSrcLen, err := r.readCrossAttentions()
	if err != nil {
		return nil, err
	}
	selfAttn, selfSrcLen, err := r.readSelfAttentions()
	if err != nil {
		return nil, err
	}

	srcLen := crossSrcLen
	if srcLen == 0 {
		srcLen = selfSrcLen
	} else if selfSrcLen != 0 && selfSrcLen != srcLen {
		return nil, errors.Errorf("cross-attention covers %d source positions but self-attention covers %d",
			crossSrcLen, selfSrcLen)
	}
	if srcLen == 0 {
		return nil, errors.New("dump contains neither cross- nor self-attention tensors")
	}

	return &Dump{
		Output: &attention.Output{
			Sequences:       sequences,
			CrossAttentions: cross,
			SelfAttentions:  selfAttn,
			BeamBacktrace:   backtrace,
		},
		Boundaries: boundaries,
		SrcLen:     srcLen,
	}, nil
}

// readCrossAttentions collects the dense [step][layer] grid of cross-attention
// tensors, each shaped [beams, heads, 1, srcLen].
func (r *Reader) readCrossAttentions() ([][]attention.BeamHeadAttention, int, error) {
	steps, layers, err := r.gridExtent(crossPrefix)
	if err != nil {
		return nil, 0, err
	}
	if steps == 0 {
		return nil, 0, nil
	}

	srcLen := 0
	cross := make([][]attention.BeamHeadAttention, steps)
	for s := 0; s < steps; s++ {
		cross[s] = make([]attention.BeamHeadAttention, layers)
		for l := 0; l < layers; l++ {
			name := crossName(s, l)
			flat, meta, err := r.readFloats(name)
			if err != nil {
				return nil, 0, err
			}
			if len(meta.Shape) != 4 || meta.Shape[2] != 1 {
				return nil, 0, errors.Errorf("tensor %s: expected shape [beams, heads, 1, srcLen], got %v",
					name, meta.Shape)
			}
			beams, heads, sl := meta.Shape[0], meta.Shape[1], meta.Shape[3]
			if srcLen == 0 {
				srcLen = sl
			} else if sl != srcLen {
				return nil, 0, errors.Errorf("tensor %s: source length %d differs from %d", name, sl, srcLen)
			}
			cross[s][l] = unflattenBeamHead(flat, beams, heads, sl)
		}
	}
	return cross, srcLen, nil
}

// readSelfAttentions collects the per-layer encoder self-attention tensors,
// each shaped [1, heads, srcLen, srcLen].
func (r *Reader) readSelfAttentions() ([]attention.HeadSquareAttention, int, error) {
	layers := 0
	for name := range r.Header.Tensors {
		rest, ok := strings.CutPrefix(name, selfPrefix)
		if !ok {
			continue
		}
		l, err := strconv.Atoi(rest)
		if err != nil || l < 0 {
			return nil, 0, errors.Errorf("malformed self-attention tensor name %q", name)
		}
		if l+1 > layers {
			layers = l + 1
		}
	}
	if layers == 0 {
		return nil, 0, nil
	}

	srcLen := 0
	selfAttn := make([]attention.HeadSquareAttention, layers)
	for l := 0; l < layers; l++ {
		name := selfName(l)
		flat, meta, err := r.readFloats(name)
		if err != nil {
			return nil, 0, err
		}
		if len(meta.Shape) != 4 || meta.Shape[0] != 1 || meta.Shape[2] != meta.Shape[3] {
			return nil, 0, errors.Errorf("tensor %s: expected shape [1, heads, srcLen, srcLen], got %v",
				name, meta.Shape)
		}
		heads, sl := meta.Shape[1], meta.Shape[2]
		if srcLen == 0 {
			srcLen = sl
		} else if sl != srcLen {
			return nil, 0, errors.Errorf("tensor %s: source length %d differs from %d", name, sl, srcLen)
		}
		selfAttn[l] = unflattenHeadSquare(flat, heads, sl)
	}
	return selfAttn, srcLen, nil
}

// gridExtent scans tensor names of the form <prefix><step>.<layer> and
// verifies the grid is dense.
func (r *Reader) gridExtent(prefix string) (steps, layers int, err error) {
	seen := make(map[[2]int]bool)
	for name := range r.Header.Tensors {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		stepStr, layerStr, ok := strings.Cut(rest, ".")
		if !ok {
			return 0, 0, errors.Errorf("malformed cross-attention tensor name %q", name)
		}
		s, err1 := strconv.Atoi(stepStr)
		l, err2 := strconv.Atoi(layerStr)
		if err1 != nil || err2 != nil || s < 0 || l < 0 {
			return 0, 0, errors.Errorf("malformed cross-attention tensor name %q", name)
		}
		seen[[2]int{s, l}] = true
		if s+1 > steps {
			steps = s + 1
		}
		if l+1 > layers {
			layers = l + 1
		}
	}
	for s := 0; s < steps; s++ {
		for l := 0; l < layers; l++ {
			if !seen[[2]int{s, l}] {
				return 0, 0, errors.Errorf("dump is missing cross-attention tensor for step %d layer %d", s, l)
			}
		}
	}
	return steps, layers, nil
}

func unflattenBeamHead(flat []float64, beams, heads, srcLen int) attention.BeamHeadAttention {
	out := make(attention.BeamHeadAttention, beams)
	i := 0
	for b := 0; b < beams; b++ {
		out[b] = make([][]float64, heads)
		for h := 0; h < heads; h++ {
			out[b][h] = flat[i : i+srcLen : i+srcLen]
			i += srcLen
		}
	}
	return out
}

func unflattenHeadSquare(flat []float64, heads, srcLen int) attention.HeadSquareAttention {
	out := make(attention.HeadSquareAttention, heads)
	i := 0
	for h := 0; h < heads; h++ {
		out[h] = make([][]float64, srcLen)
		for r := 0; r < srcLen; r++ {
			out[h][r] = flat[i : i+srcLen : i+srcLen]
			i += srcLen
		}
	}
	return out
}
