// Package weights reads and writes parameter trees as safetensors files:
// a little-endian u64 header length, a JSON header mapping tensor names
// to dtype, shape and data offsets, then the raw tensor data. Flattened
// dotted paths become the tensor names, so a whole module round-trips
// through one file.
package weights

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/weave-ml/weave/ml"
	"github.com/weave-ml/weave/nested"
)

// header is one entry of the safetensors JSON header.
type header struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

func numElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return n
}

// File is an open safetensors shard. Tensor data is read on demand, so
// listing a file's contents does not load it.
type File struct {
	f       *os.File
	dataOff int64
	entries map[string]header
	names   []string
	meta    map[string]string
}

// Open parses the header of a safetensors file. The returned File keeps
// the underlying file open until Close.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	file, err := parse(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("weights: %s: %w", path, err)
	}

	file.f = f
	return file, nil
}

func parse(r io.Reader) (*File, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	b := bytes.NewBuffer(make([]byte, 0, n))
	if _, err := io.CopyN(b, r, n); err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(b).Decode(&raw); err != nil {
		return nil, err
	}

	file := &File{dataOff: 8 + n, entries: make(map[string]header, len(raw))}
	for name, msg := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(msg, &file.meta); err != nil {
				return nil, err
			}
			continue
		}

		var h header
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, err
		}

		dtype, err := ml.ParseDType(h.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		if len(h.Offsets) != 2 || h.Offsets[0] < 0 || h.Offsets[1] < h.Offsets[0] {
			return nil, fmt.Errorf("tensor %q: bad data offsets %v", name, h.Offsets)
		}
		if size := numElements(h.Shape) * dtype.Size(); h.Offsets[1]-h.Offsets[0] != size {
			return nil, fmt.Errorf("tensor %q: %d bytes for shape %v of %s", name, h.Offsets[1]-h.Offsets[0], h.Shape, h.DType)
		}

		file.entries[name] = h
	}

	file.names = maps.Keys(file.entries)
	slices.Sort(file.names)

	return file, nil
}

func (f *File) Close() error { return f.f.Close() }

// Names lists the tensors in the file, sorted.
func (f *File) Names() []string { return append([]string(nil), f.names...) }

// Metadata returns the __metadata__ header entry, or nil.
func (f *File) Metadata() map[string]string { return f.meta }

// Info describes one tensor without loading its data.
type Info struct {
	Name  string
	DType ml.DType
	Shape []int64
}

// Infos describes every tensor in the file, sorted by name.
func (f *File) Infos() []Info {
	infos := make([]Info, 0, len(f.names))
	for _, name := range f.names {
		h := f.entries[name]
		dtype, _ := ml.ParseDType(h.DType)
		infos = append(infos, Info{
			Name:  name,
			DType: dtype,
			Shape: append([]int64(nil), h.Shape...),
		})
	}

	return infos
}

// Tensor reads one tensor onto ctx. Safe for concurrent use.
func (f *File) Tensor(ctx ml.Context, name string) (ml.Tensor, error) {
	h, ok := f.entries[name]
	if !ok {
		return nil, fmt.Errorf("weights: no tensor %q in %s", name, f.f.Name())
	}

	data := make([]byte, h.Offsets[1]-h.Offsets[0])
	if _, err := f.f.ReadAt(data, f.dataOff+h.Offsets[0]); err != nil {
		return nil, fmt.Errorf("weights: read %q: %w", name, err)
	}

	dtype, _ := ml.ParseDType(h.DType)
	return ctx.FromBytes(dtype, data, h.Shape...)
}

// Read loads every tensor of one file into a tree keyed by the dotted
// names, plus the file's metadata.
func Read(ctx ml.Context, path string) (*nested.Dictionary[ml.Tensor], map[string]string, error) {
	f, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	tree := nested.NewDictionary[ml.Tensor]()
	for _, name := range f.names {
		t, err := f.Tensor(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		tree.SetPath(name, nested.Value[ml.Tensor]{Val: t})
	}

	return tree, f.Metadata(), nil
}

// Save writes a parameter tree to path. Flattened dotted paths become
// the tensor names; metadata, when non-empty, lands in the __metadata__
// entry. Tensors are laid out in sorted name order.
func Save(path string, tensors *nested.Dictionary[ml.Tensor], metadata map[string]string) error {
	byName := make(map[string]ml.Tensor)
	for _, e := range tensors.Flatten() {
		byName[e.Path] = e.Val
	}

	names := maps.Keys(byName)
	slices.Sort(names)

	hdr := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		hdr["__metadata__"] = metadata
	}

	var off int64
	for _, name := range names {
		t := byName[name]
		size := t.NumElements() * t.DType().Size()
		hdr[name] = header{
			DType:   t.DType().String(),
			Shape:   t.Shape(),
			Offsets: []int64{off, off + size},
		}
		off += size
	}

	b, err := json.Marshal(hdr)
	if err != nil {
		return err
	}
	if pad := len(b) % 8; pad != 0 {
		b = append(b, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, int64(len(b))); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := w.Write(byName[name].Bytes()); err != nil {
			return err
		}
	}

	return w.Flush()
}
