package nested

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func eqInt(a, b int) bool { return a == b }

func TestSetPathGetPath(t *testing.T) {
	d := NewDictionary[int]()
	d.SetPath("bias", Value[int]{1})
	d.SetPath("layers.0.weight", Value[int]{2})
	d.SetPath("layers.2.weight", Value[int]{3})
	d.SetPath("blocks.attn.scale", Value[int]{4})

	cases := []struct {
		path string
		want int
		ok   bool
	}{
		{"bias", 1, true},
		{"layers.0.weight", 2, true},
		{"layers.2.weight", 3, true},
		{"blocks.attn.scale", 4, true},
		{"layers.1", 0, true}, // None placeholder
		{"layers.3.weight", 0, false},
		{"layers.0.missing", 0, false},
		{"blocks.attn.scale.deeper", 0, false},
		{"missing", 0, false},
	}

	for _, tt := range cases {
		it, ok := d.GetPath(tt.path)
		if ok != tt.ok {
			t.Errorf("GetPath(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}

		if v, isVal := it.(Value[int]); isVal {
			if v.Val != tt.want {
				t.Errorf("GetPath(%q) = %d, want %d", tt.path, v.Val, tt.want)
			}
		} else if _, isNone := it.(None[int]); !isNone {
			t.Errorf("GetPath(%q) = %T, want leaf", tt.path, it)
		}
	}
}

func TestSetPathGrowsArrays(t *testing.T) {
	d := NewDictionary[int]()
	d.SetPath("layers.2.weight", Value[int]{7})

	it, ok := d.Get("layers")
	if !ok {
		t.Fatal("missing layers")
	}

	arr, ok := it.(Array[int])
	if !ok {
		t.Fatalf("layers = %T, want Array", it)
	}
	if len(arr) != 3 {
		t.Fatalf("len(layers) = %d, want 3", len(arr))
	}
	for i := 0; i < 2; i++ {
		if _, ok := arr[i].(None[int]); !ok {
			t.Errorf("layers.%d = %T, want None", i, arr[i])
		}
	}
}

func TestFlatten(t *testing.T) {
	d := NewDictionary[int]()
	d.SetPath("weight", Value[int]{1})
	d.SetPath("layers.0.weight", Value[int]{2})
	d.SetPath("layers.0.bias", Value[int]{3})
	d.SetPath("layers.1.weight", Value[int]{4})
	d.SetPath("norm.scale", Value[int]{5})
	d.SetPath("gap.2", Value[int]{6})

	want := []Entry[int]{
		{"weight", 1},
		{"layers.0.weight", 2},
		{"layers.0.bias", 3},
		{"layers.1.weight", 4},
		{"norm.scale", 5},
		{"gap.2", 6}, // placeholders at 0 and 1 are skipped
	}

	if diff := cmp.Diff(want, d.Flatten()); diff != "" {
		t.Errorf("unexpected entries (-want +got):\n%s", diff)
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	entries := []Entry[int]{
		{"embed.weight", 1},
		{"layers.0.attn.q", 2},
		{"layers.0.attn.k", 3},
		{"layers.1.attn.q", 4},
		{"out.weight", 5},
	}

	d := Unflatten(entries)
	if diff := cmp.Diff(entries, d.Flatten()); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	build := func(paths ...string) *Dictionary[int] {
		d := NewDictionary[int]()
		for i, p := range paths {
			d.SetPath(p, Value[int]{i})
		}
		return d
	}

	a := build("w", "layers.0.w", "layers.1.w")

	// Key order must not matter.
	b := NewDictionary[int]()
	b.SetPath("layers.0.w", Value[int]{1})
	b.SetPath("layers.1.w", Value[int]{2})
	b.SetPath("w", Value[int]{0})
	if !a.Equal(b, eqInt) {
		t.Error("reordered keys should compare equal")
	}

	if a.Equal(build("w", "layers.0.w"), eqInt) {
		t.Error("shorter array should not compare equal")
	}

	c := build("w", "layers.0.w", "layers.1.w")
	c.SetPath("layers.1.w", Value[int]{99})
	if a.Equal(c, eqInt) {
		t.Error("differing leaf should not compare equal")
	}

	// A placeholder is not a value.
	p := build("w", "layers.0.w", "layers.1.w")
	p.SetPath("layers.1.w", None[int]{})
	if a.Equal(p, eqInt) {
		t.Error("None should not equal a leaf")
	}
}

func TestMap(t *testing.T) {
	d := NewDictionary[int]()
	d.SetPath("w", Value[int]{2})
	d.SetPath("layers.1.w", Value[int]{3})

	got := Map(d, func(v int) int { return v * 10 })

	want := []Entry[int]{
		{"w", 20},
		{"layers.1.w", 30},
	}
	if diff := cmp.Diff(want, got.Flatten()); diff != "" {
		t.Errorf("mapped leaves (-want +got):\n%s", diff)
	}

	// Placeholders survive the rebuild.
	if it, ok := got.GetPath("layers.0"); !ok {
		t.Error("placeholder dropped by Map")
	} else if _, isNone := it.(None[int]); !isNone {
		t.Errorf("layers.0 = %T, want None", it)
	}
}

func TestFromMap(t *testing.T) {
	d := FromMap(map[string]Item[int]{
		"c": Value[int]{3},
		"a": Value[int]{1},
		"b": Value[int]{2},
	})

	if diff := cmp.Diff([]string{"a", "b", "c"}, d.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestString(t *testing.T) {
	d := NewDictionary[int]()
	d.SetPath("w", Value[int]{1})
	d.SetPath("layers.1.w", Value[int]{2})

	want := "{w: 1, layers: [_, {w: 2}]}"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
