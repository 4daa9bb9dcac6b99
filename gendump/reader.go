package gendump

import (
	"io"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Reader provides memory-mapped access to the tensors of one dump file. The
// mapped file is an immutable snapshot: tensors are copied out on read, so the
// analyzer never aliases the mapping.
type Reader struct {
	reader     *mmap.ReaderAt
	dataOffset int64
	Header     *Header
}

// Open parses the dump header and memory-maps the file for tensor reads.
func Open(path string) (*Reader, error) {
	header, dataOffset, err := parseHeader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse header for %s", path)
	}
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", path)
	}
	return &Reader{
		reader:     reader,
		dataOffset: dataOffset,
		Header:     header,
	}, nil
}

// Close unmaps the underlying file.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// ReadTensor reads a tensor by name into a GoMLX tensor.
func (r *Reader) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	meta, ok := r.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", tensorName)
	}

	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %s", tensorName)
	}

	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))
	tensorOffset := r.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		if int64(len(data)) != meta.SizeBytes() {
			readErr = errors.Errorf("tensor %s: shape %v implies %d bytes but data offsets span %d",
				tensorName, meta.Shape, len(data), meta.SizeBytes())
			return
		}
		_, readErr = r.reader.ReadAt(data, tensorOffset)
		if readErr != nil && readErr != io.EOF {
			readErr = errors.Wrapf(readErr, "failed to read tensor %s", tensorName)
		} else {
			readErr = nil
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// readFloats reads an F32 tensor and widens it to float64.
func (r *Reader) readFloats(tensorName string) ([]float64, *TensorMetadata, error) {
	meta, ok := r.Header.Tensors[tensorName]
	if !ok {
		return nil, nil, errors.Errorf("tensor %s not found", tensorName)
	}
	t, err := r.ReadTensor(tensorName)
	if err != nil {
		return nil, nil, err
	}
	if meta.Dtype != "F32" {
		return nil, nil, errors.Errorf("tensor %s: expected dtype F32, got %s", tensorName, meta.Dtype)
	}
	var out []float64
	tensors.MustConstFlatData(t, func(data []float32) {
		out = make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
	})
	return out, meta, nil
}

// readInts reads an I64 tensor as a Go int slice.
func (r *Reader) readInts(tensorName string) ([]int, error) {
	meta, ok := r.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Errorf("tensor %s not found", tensorName)
	}
	t, err := r.ReadTensor(tensorName)
	if err != nil {
		return nil, err
	}
	if meta.Dtype != "I64" {
		return nil, errors.Errorf("tensor %s: expected dtype I64, got %s", tensorName, meta.Dtype)
	}
	var out []int
	tensors.MustConstFlatData(t, func(data []int64) {
		out = make([]int, len(data))
		for i, v := range data {
			out[i] = int(v)
		}
	})
	return out, nil
}

func dtypeToGoMLX(st string) (dtypes.DType, error) {
	switch st {
	case "F32":
		return dtypes.Float32, nil
	case "F64":
		return dtypes.Float64, nil
	case "I64":
		return dtypes.Int64, nil
	case "I32":
		return dtypes.Int32, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported dump dtype: %s", st)
	}
}
