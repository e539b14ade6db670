package nested

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/v2/maps/linkedhashmap"
	"golang.org/x/exp/maps"
)

// Dictionary is a string-keyed tree of items. Keys iterate in insertion
// order, so the same construction sequence always flattens the same way.
type Dictionary[T any] struct {
	m *linkedhashmap.Map[string, Item[T]]
}

// Entry is one leaf of a flattened tree. Path segments are joined with
// dots; array positions appear as decimal segments, "layers.0.weight".
type Entry[T any] struct {
	Path string
	Val  T
}

func NewDictionary[T any]() *Dictionary[T] {
	return &Dictionary[T]{m: linkedhashmap.New[string, Item[T]]()}
}

// FromMap builds a dictionary from an unordered mapping. Keys are inserted
// in sorted order so the result is deterministic.
func FromMap[T any](m map[string]Item[T]) *Dictionary[T] {
	d := NewDictionary[T]()
	keys := maps.Keys(m)
	slices.Sort(keys)
	for _, k := range keys {
		d.Set(k, m[k])
	}

	return d
}

func (d *Dictionary[T]) Set(key string, it Item[T]) {
	d.m.Put(key, it)
}

func (d *Dictionary[T]) Get(key string) (Item[T], bool) {
	return d.m.Get(key)
}

func (d *Dictionary[T]) Delete(key string) {
	d.m.Remove(key)
}

// Keys returns the keys in insertion order.
func (d *Dictionary[T]) Keys() []string {
	return d.m.Keys()
}

func (d *Dictionary[T]) Len() int {
	return d.m.Size()
}

func (d *Dictionary[T]) Empty() bool {
	return d.m.Empty()
}

// GetPath resolves a dotted path. Decimal segments index arrays; all other
// segments are dictionary keys. It reports false when any segment is
// missing, out of range, or lands on a node of the wrong kind.
func (d *Dictionary[T]) GetPath(path string) (Item[T], bool) {
	segs := strings.Split(path, ".")

	cur, ok := d.Get(segs[0])
	if !ok {
		return nil, false
	}

	for _, seg := range segs[1:] {
		if i, err := strconv.Atoi(seg); err == nil {
			arr, ok := cur.(Array[T])
			if !ok || i < 0 || i >= len(arr) {
				return nil, false
			}
			cur = arr[i]
			continue
		}

		dict, ok := cur.(Dict[T])
		if !ok {
			return nil, false
		}
		if cur, ok = dict.Get(seg); !ok {
			return nil, false
		}
	}

	return cur, true
}

// SetPath stores an item under a dotted path, creating intermediate
// dictionaries and arrays as needed. Arrays grow with None placeholders up
// to the written index. An intermediate of the wrong kind is replaced.
//
// The first segment is always a dictionary key, even when it is numeric;
// below the root, numeric segments address arrays.
func (d *Dictionary[T]) SetPath(path string, it Item[T]) {
	segs := strings.Split(path, ".")

	cur, _ := d.Get(segs[0])
	d.Set(segs[0], setPath[T](cur, segs[1:], it))
}

func setPath[T any](cur Item[T], segs []string, it Item[T]) Item[T] {
	if len(segs) == 0 {
		return it
	}

	if i, err := strconv.Atoi(segs[0]); err == nil {
		arr, _ := cur.(Array[T])
		for len(arr) <= i {
			arr = append(arr, None[T]{})
		}
		arr[i] = setPath[T](arr[i], segs[1:], it)
		return arr
	}

	dict, ok := cur.(Dict[T])
	if !ok {
		dict = Dict[T]{NewDictionary[T]()}
	}
	child, _ := dict.Get(segs[0])
	dict.Set(segs[0], setPath[T](child, segs[1:], it))
	return dict
}

// Flatten lists every leaf with its dotted path, depth first in insertion
// order. None placeholders do not appear.
func (d *Dictionary[T]) Flatten() []Entry[T] {
	var out []Entry[T]
	d.Walk(func(path string, v T) {
		out = append(out, Entry[T]{Path: path, Val: v})
	})

	return out
}

// Walk visits every leaf with its dotted path, depth first in insertion
// order.
func (d *Dictionary[T]) Walk(fn func(path string, v T)) {
	for _, k := range d.Keys() {
		it, _ := d.Get(k)
		walkItem(k, it, fn)
	}
}

func walkItem[T any](path string, it Item[T], fn func(path string, v T)) {
	switch v := it.(type) {
	case None[T]:
	case Value[T]:
		fn(path, v.Val)
	case Array[T]:
		for i, el := range v {
			walkItem(path+"."+strconv.Itoa(i), el, fn)
		}
	case Dict[T]:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			walkItem(path+"."+k, child, fn)
		}
	}
}

// Unflatten rebuilds a tree from flattened entries, the inverse of Flatten
// for trees without None placeholders. Later entries win on duplicate
// paths.
func Unflatten[T any](entries []Entry[T]) *Dictionary[T] {
	d := NewDictionary[T]()
	for _, e := range entries {
		d.SetPath(e.Path, Value[T]{Val: e.Val})
	}

	return d
}

// Map rebuilds the tree with fn applied to every leaf. Structure,
// including None placeholders, is preserved.
func Map[T, U any](d *Dictionary[T], fn func(T) U) *Dictionary[U] {
	out := NewDictionary[U]()
	for _, k := range d.Keys() {
		it, _ := d.Get(k)
		out.Set(k, mapItem(it, fn))
	}

	return out
}

// Equal reports whether two trees have the same structure and, via eq, the
// same leaves. Key order does not matter; array order and None placeholders
// do.
func (d *Dictionary[T]) Equal(o *Dictionary[T], eq func(a, b T) bool) bool {
	if d.Len() != o.Len() {
		return false
	}

	for _, k := range d.Keys() {
		a, _ := d.Get(k)
		b, ok := o.Get(k)
		if !ok || !itemEqual(a, b, eq) {
			return false
		}
	}

	return true
}

func (d *Dictionary[T]) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		it, _ := d.Get(k)
		fmt.Fprintf(&sb, "%s: %v", k, it)
	}
	sb.WriteByte('}')

	return sb.String()
}
