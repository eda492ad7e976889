package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	sd "github.com/fixkme/rpckit/discovery"
	"github.com/fixkme/rpckit/discovery/etcd"
	"github.com/fixkme/rpckit/framework/app"
	"github.com/fixkme/rpckit/framework/config"
	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
)

type fakeDiscovery struct {
	errCh chan error
}

func (d *fakeDiscovery) Start() <-chan error { return d.errCh }

func (d *fakeDiscovery) Stop() { close(d.errCh) }

func (d *fakeDiscovery) RegisterService(name, addr string) (string, error) {
	return name, nil
}

func (d *fakeDiscovery) GetService(name string) (string, error) {
	return "127.0.0.1:7001", nil
}

func (d *fakeDiscovery) GetAllService(name string) (map[string]string, error) {
	return map[string]string{name: "127.0.0.1:7001"}, nil
}

func writeTestConfig(t *testing.T, dir, routeFile string) string {
	t.Helper()
	confFile := filepath.Join(dir, "app.json")
	data := `{
  "app_version": "1.0.0",
  "etcd_endpoints": "127.0.0.1:2379",
  "etcd_lease_ttl": 5,
  "rpc_group": "test",
  "route_file": "` + routeFile + `",
  "connect_timeout": 50,
  "connect_retries": 2,
  "retry_delay": 10,
  "call_timeout": 1000,
  "services_dir": "services",
  "out_dir": "rpcclient"
}`
	if err := os.WriteFile(confFile, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return confFile
}

func TestClientModuleLifecycle(t *testing.T) {
	mlog.UseStdLogger(mlog.DebugLevel)
	dir := t.TempDir()

	routes := meta.RouteMap{
		"users": {
			"getUser": {Key: "users.get", HasPayload: true},
			"ping":    {Key: "users.ping"},
		},
	}
	routeFile := filepath.Join(dir, "routes.json")
	if err := routes.SaveFile(routeFile); err != nil {
		t.Fatal(err)
	}

	if err := config.LoadConfig(writeTestConfig(t, dir, routeFile), nil); err != nil {
		t.Fatal(err)
	}
	if config.Config.RpcGroup != "test" || config.Config.ServicesDir != "services" {
		t.Fatalf("config not loaded: %s", config.Config.JsonFormat())
	}

	if err := InitClientModule("rpc", &config.Config.ClientConfig); err != nil {
		t.Fatal(err)
	}
	fd := &fakeDiscovery{errCh: make(chan error, 1)}
	newDiscovery = func(ctx context.Context, opt *etcd.EtcdOpt) (sd.Discovery, error) {
		if opt.ServiceGroup != "test" {
			t.Errorf("unexpected service group %q", opt.ServiceGroup)
		}
		return fd, nil
	}

	a := app.DefaultApp()
	done := make(chan struct{})
	go func() {
		a.Run(Rpc)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for a.GetState() != app.AppStateRun {
		if time.Now().After(deadline) {
			t.Fatal("app did not reach run state")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := Rpc.Proxy("users"); err != nil {
		t.Fatalf("users proxy: %v", err)
	}
	if _, err := Rpc.Proxy("orders"); err == nil {
		t.Fatal("expect unknown service error")
	}
	if got := Rpc.Client().Services(); len(got) != 1 || got[0] != "users" {
		t.Fatalf("services = %v", got)
	}

	a.Stop()
	<-done
	if a.GetState() != app.AppStateNone {
		t.Fatalf("app state after stop = %d", a.GetState())
	}
}
