package meta

import "testing"

func TestRenderStable(t *testing.T) {
	v := map[string]Value{
		"zone": "eu",
		"name": "orders",
		"ver":  float64(2),
	}
	want := `{"name":"orders","ver":2,"zone":"eu"}`
	for i := 0; i < 10; i++ {
		if got := Render(v); got != want {
			t.Fatalf("got %s", got)
		}
	}
}

func TestRenderNested(t *testing.T) {
	v := []Value{"users", float64(1), map[string]Value{"b": true, "a": nil}}
	if got := Render(v); got != `["users",1,{"a":null,"b":true}]` {
		t.Fatalf("got %s", got)
	}
}

func TestKeyString(t *testing.T) {
	if KeyString("users.get") != "users.get" {
		t.Fatal("string keys pass through")
	}
	if KeyString([]Value{"orders", float64(1)}) != `["orders",1]` {
		t.Fatal("composite keys render")
	}
}

func TestEmpty(t *testing.T) {
	empty := []Value{nil, "", []Value{}, map[string]Value{}, false, float64(0)}
	for _, v := range empty {
		if !Empty(v) {
			t.Fatalf("%#v should be empty", v)
		}
	}
	full := []Value{"k", []Value{"a"}, map[string]Value{"a": nil}, true, float64(1)}
	for _, v := range full {
		if Empty(v) {
			t.Fatalf("%#v should not be empty", v)
		}
	}
}

func TestEqual(t *testing.T) {
	a := map[string]Value{"x": float64(1), "y": "z"}
	b := map[string]Value{"y": "z", "x": float64(1)}
	if !Equal(a, b) {
		t.Fatal("order must not matter")
	}
	if Equal(a, map[string]Value{"x": float64(2)}) {
		t.Fatal("different values")
	}
}
