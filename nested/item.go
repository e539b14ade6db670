// Package nested implements the tree-shaped containers produced by module
// traversal: an insertion-ordered dictionary whose values are leaves, arrays,
// or further dictionaries. A filtered traversal and the gradient trees fed
// back into a model are structurally congruent instances of these types.
package nested

import (
	"fmt"
	"strings"
)

// Item is one node of a nested tree: a placeholder, a leaf value, a
// positional array, or a keyed dictionary.
type Item[T any] interface {
	item()
}

// None marks a slot that a filter omitted. It keeps array indices and
// dictionary keys stable when siblings survive the filter.
type None[T any] struct{}

// Value is a leaf.
type Value[T any] struct {
	Val T
}

// Array holds positional children.
type Array[T any] []Item[T]

// Dict holds keyed children.
type Dict[T any] struct {
	*Dictionary[T]
}

func (None[T]) item()  {}
func (Value[T]) item() {}
func (Array[T]) item() {}
func (Dict[T]) item()  {}

func (None[T]) String() string     { return "_" }
func (v Value[T]) String() string  { return fmt.Sprintf("%v", v.Val) }
func (a Array[T]) String() string {
	parts := make([]string, len(a))
	for i, it := range a {
		parts[i] = fmt.Sprintf("%v", it)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

func itemEqual[T any](a, b Item[T], eq func(x, y T) bool) bool {
	switch av := a.(type) {
	case None[T]:
		_, ok := b.(None[T])
		return ok
	case Value[T]:
		bv, ok := b.(Value[T])
		return ok && eq(av.Val, bv.Val)
	case Array[T]:
		bv, ok := b.(Array[T])
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !itemEqual(av[i], bv[i], eq) {
				return false
			}
		}
		return true
	case Dict[T]:
		bv, ok := b.(Dict[T])
		return ok && av.Dictionary.Equal(bv.Dictionary, eq)
	default:
		return false
	}
}

func mapItem[T, U any](it Item[T], fn func(T) U) Item[U] {
	switch v := it.(type) {
	case None[T]:
		return None[U]{}
	case Value[T]:
		return Value[U]{Val: fn(v.Val)}
	case Array[T]:
		out := make(Array[U], len(v))
		for i, el := range v {
			out[i] = mapItem(el, fn)
		}
		return out
	case Dict[T]:
		return Dict[U]{Map(v.Dictionary, fn)}
	default:
		panic(fmt.Sprintf("nested: unknown item %T", it))
	}
}
