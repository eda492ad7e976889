package core

import (
	"context"
	"strings"
	"time"

	sd "github.com/fixkme/rpckit/discovery"
	"github.com/fixkme/rpckit/discovery/etcd"
	"github.com/fixkme/rpckit/framework/config"
	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
	"github.com/fixkme/rpckit/rpc"
	"google.golang.org/protobuf/proto"
)

var (
	Rpc *ClientModule
)

// ClientModule 以app模块的形式装配rpc客户端：
// 启动时加载路由表、初始化服务发现，调用时按服务名解析地址建连
type ClientModule struct {
	conf    *config.ClientConfig
	etcdOpt *etcd.EtcdOpt
	cliOpt  *rpc.ProxyOptions

	disc   sd.Discovery
	client *rpc.Client
	cancel context.CancelFunc
	errCh  <-chan error
	name   string
}

// newDiscovery 服务发现的构造入口，测试替换
var newDiscovery = func(ctx context.Context, opt *etcd.EtcdOpt) (sd.Discovery, error) {
	return etcd.NewEtcdDiscovery(ctx, opt)
}

func InitClientModule(name string, conf *config.ClientConfig) error {
	etcdOpt := &etcd.EtcdOpt{
		Endpoints:            strings.Split(conf.EtcdEndpoints, ","),
		DialTimeout:          5,
		DialKeepAliveTime:    5,
		DialKeepAliveTimeout: 3,
		AutoSyncInterval:     15,
		LeaseTTL:             conf.EtcdLeaseTTL,
		ServiceGroup:         conf.RpcGroup,
	}
	cliOpt := &rpc.ProxyOptions{
		ConnectTimeout: time.Duration(conf.ConnectTimeout) * time.Millisecond,
		ConnectRetries: conf.ConnectRetries,
		RetryDelay:     time.Duration(conf.RetryDelay) * time.Millisecond,
		CallTimeout:    time.Duration(conf.CallTimeout) * time.Millisecond,
		Marshaler:      &MsgMarshaler,
	}
	Rpc = &ClientModule{
		conf:    conf,
		etcdOpt: etcdOpt,
		cliOpt:  cliOpt,
		name:    name,
	}
	return nil
}

func (m *ClientModule) OnInit() error {
	routes, err := meta.LoadRouteMap(m.conf.RouteFile)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	disc, err := newDiscovery(ctx, m.etcdOpt)
	if err != nil {
		cancel()
		return err
	}
	m.disc = disc
	m.client = rpc.NewClient(routes, m.dialService, m.cliOpt)
	return nil
}

// dialService 构造一个服务的传输客户端，地址在每次连接尝试时重新解析
func (m *ClientModule) dialService(service string) (rpc.Transport, error) {
	return rpc.NewGnetTransport(func() (string, error) {
		return m.disc.GetService(service)
	})
}

func (m *ClientModule) Run() {
	m.errCh = m.disc.Start()
	if err := <-m.errCh; err != nil {
		mlog.Errorf("%s discovery stopped: %v", m.name, err)
	}
}

func (m *ClientModule) Destroy() {
	if err := m.client.Close(); err != nil {
		mlog.Errorf("%v module stop error: %v", m.name, err)
	}
	m.disc.Stop()
	m.cancel()
}

func (m *ClientModule) Name() string {
	return m.name
}

// Client 底层客户端
func (m *ClientModule) Client() *rpc.Client {
	return m.client
}

// Proxy 取某服务的调用代理
func (m *ClientModule) Proxy(service string) (*rpc.Proxy, error) {
	return m.client.Proxy(service)
}

// Call 按方法名发起一次调用，返回首个响应
func (m *ClientModule) Call(ctx context.Context, service, method string, args ...any) (*rpc.Response, error) {
	p, err := m.client.Proxy(service)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, method, args...)
}

// Stream 按方法名发起一次流式调用
func (m *ClientModule) Stream(ctx context.Context, service, method string, args ...any) (<-chan *rpc.Response, error) {
	p, err := m.client.Proxy(service)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, method, args...)
}

var (
	// 全局默认，用户层pb消息解码
	MsgUnmarshaler = proto.UnmarshalOptions{
		Merge:          false,
		AllowPartial:   true,
		DiscardUnknown: false,
		RecursionLimit: 100,
	}
	// 全局默认，用户层pb消息编码
	MsgMarshaler = proto.MarshalOptions{
		AllowPartial:  true,
		Deterministic: false,
	}
)
