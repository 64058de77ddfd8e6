package object

import "testing"

func TestDictPreservesInsertionOrder(t *testing.T) {
	d := NewDictFrom(E("Type", Name("Page")), E("Parent", IndirectRef{Number: 3}), E("A", Int(1)))
	d = d.Set("B", Int(2))
	d = d.Set("Type", Name("Pages")) // overwrite, should not move position

	want := []Name{"Type", "Parent", "A", "B"}
	got := d.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if name, _ := d.GetName("Type"); name != "Pages" {
		t.Fatalf("overwritten value = %q, want Pages", name)
	}
}

func TestDictDeletePreservesRemainingOrder(t *testing.T) {
	d := NewDictFrom(E("A", Int(1)), E("B", Int(2)), E("C", Int(3)))
	d = d.Delete("B")
	want := []Name{"A", "C"}
	got := d.Keys()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Keys() after delete = %v, want %v", got, want)
	}
	if d.Has("B") {
		t.Fatal("deleted key still present")
	}
}

func TestDictIsImmutableUnderSet(t *testing.T) {
	original := NewDictFrom(E("A", Int(1)))
	updated := original.Set("B", Int(2))
	if original.Has("B") {
		t.Fatal("Set mutated the receiver")
	}
	if !updated.Has("B") {
		t.Fatal("Set did not apply to the returned Dict")
	}
}

func TestIndirectRefNull(t *testing.T) {
	if !(IndirectRef{}).IsNull() {
		t.Fatal("zero-value IndirectRef must be null")
	}
	if (IndirectRef{Number: 1}).IsNull() {
		t.Fatal("(1,0) must not be null")
	}
}

func TestArrayGetOutOfRange(t *testing.T) {
	a := Array{Int(1), Int(2)}
	if a.Get(-1) != nil || a.Get(2) != nil {
		t.Fatal("Get out of range must return nil")
	}
	if a.Get(1) != Int(2) {
		t.Fatal("Get(1) should return the second element")
	}
}

func TestObjectTypeString(t *testing.T) {
	cases := []struct {
		o    Object
		want ObjectType
	}{
		{Null{}, ObjNull},
		{Bool(true), ObjBool},
		{Int(1), ObjInt},
		{Real(1.5), ObjReal},
		{String("x"), ObjString},
		{Name("Foo"), ObjName},
		{Array{}, ObjArray},
		{NewDict(), ObjDict},
		{Reserved{}, ObjReserved},
		{Unresolved{}, ObjUnresolved},
		{IndirectRef{}, ObjIndirect},
	}
	for _, c := range cases {
		if c.o.Type() != c.want {
			t.Errorf("%T.Type() = %v, want %v", c.o, c.o.Type(), c.want)
		}
	}
}
