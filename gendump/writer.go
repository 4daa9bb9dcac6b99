package gendump

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
)

// entry is one tensor staged for writing, in file order.
type entry struct {
	name    string
	dtype   string
	shape   []int
	payload []byte
}

// Write serializes a Dump to path in the safetensors format the Reader
// understands. It is the producer side of the hand-off and is also what the
// tests use to fabricate dumps.
func Write(path string, d *Dump) error {
	if d.Output == nil {
		return errors.New("dump has no generation output")
	}

	var entries []entry
	entries = append(entries,
		intEntry(tensorSequences, d.Output.Sequences),
		intEntry(tensorBeamIndices, d.Output.BeamBacktrace),
		intEntry(tensorSepPositions, d.Boundaries),
	)

	for s, layers := range d.Output.CrossAttentions {
		for l, beams := range layers {
			e, err := crossEntry(crossName(s, l), beams)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
	}
	for l, layer := range d.Output.SelfAttentions {
		e, err := selfEntry(selfName(l), layer)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	header := make(map[string]any, len(entries)+1)
	header["__metadata__"] = map[string]string{"format": formatVersion}
	offset := int64(0)
	for _, e := range entries {
		end := offset + int64(len(e.payload))
		header[e.name] = map[string]any{
			"dtype":        e.dtype,
			"shape":        e.shape,
			"data_offsets": [2]int64{offset, end},
		}
		offset = end
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal dump header")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create dump %s", path)
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := w.Write(headerBytes); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write header")
	}
	for _, e := range entries {
		if _, err := w.Write(e.payload); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to write tensor %s", e.name)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to flush dump")
	}
	return f.Close()
}

func intEntry(name string, values []int) entry {
	payload := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(payload[8*i:], uint64(int64(v)))
	}
	return entry{name: name, dtype: "I64", shape: []int{len(values)}, payload: payload}
}

func crossEntry(name string, beams [][][]float64) (entry, error) {
	if len(beams) == 0 || len(beams[0]) == 0 {
		return entry{}, errors.Errorf("tensor %s: empty cross-attention step", name)
	}
	heads, srcLen := len(beams[0]), len(beams[0][0])
	payload := make([]byte, 0, 4*len(beams)*heads*srcLen)
	for b, beam := range beams {
		if len(beam) != heads {
			return entry{}, errors.Errorf("tensor %s: beam %d has %d heads, expected %d", name, b, len(beam), heads)
		}
		for h, head := range beam {
			if len(head) != srcLen {
				return entry{}, errors.Errorf("tensor %s: beam %d head %d covers %d positions, expected %d",
					name, b, h, len(head), srcLen)
			}
			payload = appendFloat32(payload, head)
		}
	}
	return entry{name: name, dtype: "F32", shape: []int{len(beams), heads, 1, srcLen}, payload: payload}, nil
}

func selfEntry(name string, layer [][][]float64) (entry, error) {
	if len(layer) == 0 || len(layer[0]) == 0 {
		return entry{}, errors.Errorf("tensor %s: empty self-attention layer", name)
	}
	heads, srcLen := len(layer), len(layer[0])
	payload := make([]byte, 0, 4*heads*srcLen*srcLen)
	for h, head := range layer {
		if len(head) != srcLen {
			return entry{}, errors.Errorf("tensor %s: head %d has %d rows, expected %d", name, h, len(head), srcLen)
		}
		for r, row := range head {
			if len(row) != srcLen {
				return entry{}, errors.Errorf("tensor %s: head %d row %d covers %d positions, expected %d",
					name, h, r, len(row), srcLen)
			}
			payload = appendFloat32(payload, row)
		}
	}
	return entry{name: name, dtype: "F32", shape: []int{1, heads, srcLen, srcLen}, payload: payload}, nil
}

func appendFloat32(payload []byte, values []float64) []byte {
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
		payload = append(payload, buf[:]...)
	}
	return payload
}
