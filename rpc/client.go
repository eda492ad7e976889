package rpc

import (
	"fmt"
	"sync"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
)

// TransportDialer 按服务名构造传输客户端。构造不建立连接，
// 连接由该服务的Proxy在首次调用时触发。
type TransportDialer func(service string) (Transport, error)

// Client 持有路由表和每个服务的调用代理。
// 服务之间是相互独立的状态机，互不影响。
type Client struct {
	routes meta.RouteMap
	dial   TransportDialer
	opt    *ProxyOptions

	proxies map[string]*Proxy
	mtx     sync.RWMutex
}

func NewClient(routes meta.RouteMap, dial TransportDialer, opt *ProxyOptions) *Client {
	return &Client{
		routes:  routes,
		dial:    dial,
		opt:     initProxyOpt(opt),
		proxies: make(map[string]*Proxy),
	}
}

// Proxy 取服务的调用代理，首次访问时构造并缓存
func (c *Client) Proxy(service string) (*Proxy, error) {
	c.mtx.RLock()
	p, ok := c.proxies[service]
	c.mtx.RUnlock()
	if ok {
		return p, nil
	}

	routes, ok := c.routes[service]
	if !ok {
		return nil, fmt.Errorf("service %s is not in the route map", service)
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if p, ok := c.proxies[service]; ok {
		return p, nil
	}
	tp, err := c.dial(service)
	if err != nil {
		return nil, err
	}
	p = NewProxy(service, routes, tp, c.opt)
	c.proxies[service] = p
	return p, nil
}

// Services 路由表里的全部服务名
func (c *Client) Services() []string {
	return c.routes.Services()
}

func (c *Client) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for name, p := range c.proxies {
		if err := p.tp.Close(); err != nil {
			mlog.Errorf("close transport of %s error: %v", name, err)
		}
	}
	c.proxies = make(map[string]*Proxy)
	return nil
}
