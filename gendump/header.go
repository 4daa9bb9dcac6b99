// Package gendump reads and writes per-example generation dumps: the token
// sequences, beam backtrace, document boundaries and raw attention tensors a
// generation run captures for one example, stored in the safetensors format.
// It is the hand-off point between the generation collaborator and the
// attention analyzer.
package gendump

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Header represents the JSON header of a generation dump file.
type Header struct {
	Tensors  map[string]*TensorMetadata
	Metadata map[string]string
}

// TensorMetadata describes a single tensor in the dump.
type TensorMetadata struct {
	Name        string   `json:"-"`
	Dtype       string   `json:"dtype"`        // F32 or I64
	Shape       []int    `json:"shape"`        // tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) byte offsets past the header
}

// NumElements returns the number of elements implied by the shape.
func (m *TensorMetadata) NumElements() int64 {
	n := int64(1)
	for _, d := range m.Shape {
		n *= int64(d)
	}
	return n
}

// SizeBytes returns the byte size of the tensor data.
func (m *TensorMetadata) SizeBytes() int64 {
	return m.DataOffsets[1] - m.DataOffsets[0]
}

// maxHeaderSize bounds the JSON header; a dump's header holds only tensor
// names and shapes, so anything larger is corrupt.
const maxHeaderSize = 64 * 1024 * 1024

// parseHeader reads and parses the header of a dump file. Safetensors layout:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
func parseHeader(path string) (*Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open dump %s", path)
	}
	defer f.Close()

	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, 0, errors.Errorf("header size too large: %d bytes", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, 0, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse header JSON")
	}

	header := &Header{
		Tensors:  make(map[string]*TensorMetadata),
		Metadata: make(map[string]string),
	}
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &header.Metadata); err != nil {
				return nil, 0, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMetadata
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, 0, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		header.Tensors[key] = &tm
	}

	dataOffset := int64(8 + headerSize)
	return header, dataOffset, nil
}
