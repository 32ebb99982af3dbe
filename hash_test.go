package memimage

import (
	"testing"
	"unsafe"
)

func TestHashNameStable(t *testing.T) {
	if HashName("") != fnvOffset64 {
		t.Error("empty string must hash to the offset basis")
	}
	if HashName("player") != HashName("player") {
		t.Error("hash is not deterministic")
	}
	if HashName("player") == HashName("Player") {
		t.Error("case variants must not collide")
	}
}

// Layout hashes must agree between independent processes, which a fresh
// registry stands in for.
func TestLayoutHashCrossRegistry(t *testing.T) {
	p := LayoutParams{PointerWidth: 8}

	r1 := NewRegistry()
	t1 := registerTestTypes(r1)
	r2 := NewRegistry()
	t2 := registerTestTypes(r2)

	for _, pair := range []struct {
		name string
		a, b *TypeDescriptor
	}{
		{"child", t1.child, t2.child},
		{"holder", t1.holder, t2.holder},
		{"derived", t1.derived, t2.derived},
		{"node", t1.node, t2.node},
	} {
		if LayoutHash(pair.a, p) != LayoutHash(pair.b, p) {
			t.Errorf("%s: identical registrations hash differently", pair.name)
		}
	}
}

func TestLayoutHashDetectsChanges(t *testing.T) {
	p := LayoutParams{PointerWidth: 8}

	base := NewRegistry().MustRegister(Describe[childObj]("hash.t").
		Field("x", KindInt32, unsafe.Offsetof(childObj{}.X)))

	type grown struct {
		X int32
		Y int32
	}
	cases := []struct {
		name string
		d    *TypeDescriptor
	}{
		{"added field", NewRegistry().MustRegister(Describe[grown]("hash.t").
			Field("x", KindInt32, unsafe.Offsetof(grown{}.X)).
			Field("y", KindInt32, unsafe.Offsetof(grown{}.Y)))},
		{"renamed field", NewRegistry().MustRegister(Describe[childObj]("hash.t").
			Field("y", KindInt32, unsafe.Offsetof(childObj{}.X)))},
		{"widened field", NewRegistry().MustRegister(Describe[struct{ X int64 }]("hash.t").
			Field("x", KindInt64, 0))},
	}
	want := LayoutHash(base, p)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if LayoutHash(tc.d, p) == want {
				t.Error("layout change did not change the hash")
			}
		})
	}
}

func TestLayoutHashParamsSensitivity(t *testing.T) {
	reg := NewRegistry()
	tt := registerTestTypes(reg)

	h64 := LayoutHash(tt.holder, LayoutParams{PointerWidth: 8})
	h32 := LayoutHash(tt.holder, LayoutParams{PointerWidth: 4})
	if h64 == h32 {
		t.Error("pointer width must affect the hash of a pointer-bearing type")
	}

	type cond struct {
		A int32
		E int32
	}
	d := reg.MustRegister(Describe[cond]("hash.cond").
		Field("a", KindInt32, unsafe.Offsetof(cond{}.A)).
		Field("e", KindInt32, unsafe.Offsetof(cond{}.E), FieldEditorOnly))

	bare := LayoutHash(d, LayoutParams{PointerWidth: 8})
	editor := LayoutHash(d, LayoutParams{PointerWidth: 8, WithEditorData: true})
	if bare == editor {
		t.Error("conditional inclusion must affect the hash")
	}
}

// A layout that cannot be built still contributes a deterministic marker,
// never a hash that silently omits the size and alignment facts.
func TestLayoutHashUnbuildableLayout(t *testing.T) {
	reg := NewRegistry()
	tt := registerTestTypes(reg)

	bad := LayoutParams{} // zero pointer width has no valid layout
	h1 := LayoutHash(tt.holder, bad)
	if h1 != LayoutHash(tt.holder, bad) {
		t.Error("failed-layout hash is not deterministic")
	}
	if h1 == LayoutHash(tt.holder, LayoutParams{PointerWidth: 8}) {
		t.Error("failed layout must not collide with a built one")
	}
	if h1 == LayoutHash(tt.child, bad) {
		t.Error("distinct types must stay distinct when layouts fail")
	}
}

func TestLayoutHashSelfReferenceTerminates(t *testing.T) {
	reg := NewRegistry()
	tt := registerTestTypes(reg)

	h := LayoutHash(tt.node, LayoutParams{PointerWidth: 8})
	if h != LayoutHash(tt.node, LayoutParams{PointerWidth: 8}) {
		t.Error("self-referential hash is not deterministic")
	}
}
