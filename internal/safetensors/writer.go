package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"
)

// F32Tensor is a float32 tensor staged for writing.
type F32Tensor struct {
	Shape []int
	Data  []float32
}

// WriteF32 writes tensors as an F32 checkpoint. Tensors are laid out in name
// order so output is reproducible.
func WriteF32(path string, tensors map[string]F32Tensor, metadata map[string]string) (err error) {
	names := make([]string, 0, len(tensors))
	for n := range tensors {
		names = append(names, n)
	}
	sort.Strings(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var off int64
	for _, n := range names {
		t := tensors[n]
		count, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", n, err)
		}
		if count != len(t.Data) {
			return fmt.Errorf("tensor %s: shape %v holds %d values, got %d", n, t.Shape, count, len(t.Data))
		}
		end := off + int64(count)*4
		header[n] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: []int64{off, end}}
		off = end
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	// Pad the header with spaces to an 8 byte boundary.
	for len(hb)%8 != 0 {
		hb = append(hb, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	var buf [4]byte
	for _, n := range names {
		for _, v := range tensors[n].Data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}
