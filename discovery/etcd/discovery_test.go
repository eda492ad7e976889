package etcd

import (
	"context"
	"testing"
)

func newTestImp() *etcdImp {
	return &etcdImp{
		prefix:      "grp:service:",
		allServices: make(serviceContainer),
		regServs:    make(map[string]string),
		ctx:         context.Background(),
	}
}

func TestParseKey(t *testing.T) {
	e := newTestImp()
	name, id, err := e.parseKey("grp:service:orders:b748593c-ec50-4b4c-8b4a-21705dd1789f")
	if err != nil {
		t.Fatal(err)
	}
	if name != "orders" || id != "b748593c-ec50-4b4c-8b4a-21705dd1789f" {
		t.Fatalf("got (%s, %s)", name, id)
	}
	if _, _, err = e.parseKey("other:service:orders:xx"); err == nil {
		t.Fatal("expect prefix mismatch error")
	}
	if _, _, err = e.parseKey("grp:service:orders"); err == nil {
		t.Fatal("expect format error")
	}
}

func TestAddDelService(t *testing.T) {
	e := newTestImp()
	if !e.addService("orders", "id1", "127.0.0.1:8001") {
		t.Fatal("first add should succeed")
	}
	if e.addService("orders", "id1", "127.0.0.1:8001") {
		t.Fatal("duplicate add should be ignored")
	}
	e.addService("orders", "id2", "127.0.0.1:8002")

	addr, err := e.GetService("orders:id2")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "127.0.0.1:8002" {
		t.Fatalf("got addr %s", addr)
	}

	all, err := e.GetAllService("orders")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d services", len(all))
	}

	if !e.delService("orders", "id1") {
		t.Fatal("del should succeed")
	}
	if e.delService("orders", "id1") {
		t.Fatal("second del should fail")
	}
	if _, err := e.GetService("orders:id1"); err == nil {
		t.Fatal("expect not found after delete")
	}
}

func TestGetServiceRandom(t *testing.T) {
	e := newTestImp()
	if _, err := e.GetService("orders"); err == nil {
		t.Fatal("expect error for unknown service")
	}
	e.addService("orders", "id1", "127.0.0.1:8001")
	addr, err := e.GetService("Orders")
	if err != nil {
		t.Fatal(err)
	}
	if addr != "127.0.0.1:8001" {
		t.Fatalf("got addr %s", addr)
	}
}
