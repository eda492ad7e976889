package meta

import "testing"

func TestKeyIndexDuplicates(t *testing.T) {
	rm := RouteMap{
		"users": {
			"getUser":  {Key: "users.get", HasPayload: true},
			"fetchOne": {Key: "users.get", HasPayload: true},
			"ping":     {Key: "users.ping"},
		},
		"orders": {
			"list": {Key: "orders.list", HasPayload: true},
		},
	}
	idx := BuildKeyIndex(rm)

	dups := idx.Duplicates()
	if len(dups) != 1 || dups[0] != "users.get" {
		t.Fatalf("got %v", dups)
	}
	refs := idx.Lookup("users.get")
	if len(refs) != 2 {
		t.Fatalf("got %v", refs)
	}
	if idx.Lookup("nope") != nil {
		t.Fatal("missing key")
	}
}

func TestKeyIndexNamespace(t *testing.T) {
	idx := NewKeyIndex()
	idx.Insert("users.get", RouteRef{Service: "users", Method: "getUser"})
	idx.Insert("users.created", RouteRef{Service: "users", Method: "emitCreated"})
	idx.Insert("orders.list", RouteRef{Service: "orders", Method: "list"})

	keys := idx.Namespace("users.")
	if len(keys) != 2 {
		t.Fatalf("got %v", keys)
	}
	if len(idx.Namespace("billing.")) != 0 {
		t.Fatal("empty namespace")
	}
}
