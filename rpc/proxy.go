package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/fixkme/rpckit/errs"
	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
	"google.golang.org/protobuf/proto"
)

// 连接监督状态机。状态只被调用触发迁移，没有后台调度器。
// Uninitialized -> Connecting -> Connected，重试期间停留在Connecting，
// 用尽重试预算后进入终态Failed。
const (
	stateUninitialized int32 = iota
	stateConnecting
	stateConnected
	stateFailed
)

var ErrInvalidReqData = errors.New("invalid request data")

// binding 一个客户端方法的绑定：构造Proxy时由路由表一次性注册，
// 此后整个生命周期不变。
type binding struct {
	method     string
	key        string
	hasPayload bool
	emit       bool // emit前缀 => 事件派发
	stream     bool // '$'后缀或emit前缀 => 多值流
}

// Proxy 一个服务的调用代理。全部方法共享同一条传输连接，
// 首次调用触发连接，此后的调用只检查实时连接状态。
// 并发调用安全。
type Proxy struct {
	service  string
	tp       Transport
	opt      *ProxyOptions
	bindings map[string]*binding

	state   atomic.Int32
	status  atomic.Int32 // 状态feed的最近观测值
	ready   chan struct{}
	connErr error // ready关闭前写入
}

func NewProxy(service string, routes meta.ServiceRoutes, tp Transport, opt *ProxyOptions) *Proxy {
	p := &Proxy{
		service:  service,
		tp:       tp,
		opt:      initProxyOpt(opt),
		bindings: make(map[string]*binding, len(routes)),
		ready:    make(chan struct{}),
	}
	for method, route := range routes {
		p.bindings[method] = &binding{
			method:     method,
			key:        meta.KeyString(route.Key),
			hasPayload: route.HasPayload,
			emit:       meta.IsEmit(method),
			stream:     meta.IsStream(method),
		}
	}
	return p
}

func (p *Proxy) Service() string {
	return p.service
}

// Methods 已注册的客户端方法名
func (p *Proxy) Methods() []string {
	names := make([]string, 0, len(p.bindings))
	for name := range p.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call 单值调用：取底层流的首条消息。适用于不带流标记的请求方法。
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (*Response, error) {
	b, err := p.binding(method)
	if err != nil {
		return nil, err
	}
	src, timeout, err := p.open(ctx, b, args)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		mlog.Warnf("rpc call %s.%s timed out after %v", p.service, method, timeout)
		return nil, errs.CallTimeout.Printf("%s.%s", p.service, method)
	case rsp, ok := <-src:
		if !ok {
			return nil, errs.Unknown.Printf("%s.%s: stream closed without response", p.service, method)
		}
		if err := rsp.Err(); err != nil {
			return nil, err
		}
		return rsp, nil
	}
}

// Stream 多值调用：返回底层响应流。适用于流标记方法和emit方法。
// 相邻两条消息之间超过超时间隔时，流以一条超时错误结束。
func (p *Proxy) Stream(ctx context.Context, method string, args ...any) (<-chan *Response, error) {
	b, err := p.binding(method)
	if err != nil {
		return nil, err
	}
	src, timeout, err := p.open(ctx, b, args)
	if err != nil {
		return nil, err
	}
	out := make(chan *Response, 8)
	go p.forward(ctx, b, src, timeout, out)
	return out, nil
}

// Do 按方法名选择返回形态：流标记或emit前缀得到<-chan *Response，
// 其余得到*Response。
func (p *Proxy) Do(ctx context.Context, method string, args ...any) (any, error) {
	if meta.IsStream(method) {
		return p.Stream(ctx, method, args...)
	}
	return p.Call(ctx, method, args...)
}

func (p *Proxy) binding(method string) (*binding, error) {
	b, ok := p.bindings[method]
	if !ok {
		return nil, errs.UnknownMethod.Printf("%s.%s", p.service, method)
	}
	return b, nil
}

// open 参数拆分、负载编码、连接检查、派发
func (p *Proxy) open(ctx context.Context, b *binding, args []any) (<-chan *Response, time.Duration, error) {
	payload, copt, err := splitArgs(b, args)
	if err != nil {
		return nil, 0, err
	}
	data, err := p.marshalPayload(payload)
	if err != nil {
		return nil, 0, err
	}
	if err := p.ensureConnected(ctx); err != nil {
		return nil, 0, err
	}
	timeout := p.opt.CallTimeout
	if copt.Timeout > 0 {
		timeout = copt.Timeout
	}
	if b.emit {
		return p.tp.Emit(b.key, data), timeout, nil
	}
	return p.tp.Send(b.key, data), timeout, nil
}

// splitArgs 负载/选项参数消歧：路由记了hasPayload时第一个参数是负载、
// 第二个是选项；否则唯一参数（如有）是选项，发送空负载。
func splitArgs(b *binding, args []any) (any, *CallOption, error) {
	var payload any
	opt := defaultCallOption
	optIdx := 0
	if b.hasPayload {
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("method %s expects a payload argument", b.method)
		}
		payload = args[0]
		optIdx = 1
	}
	if len(args) > optIdx {
		if args[optIdx] != nil {
			o, ok := args[optIdx].(*CallOption)
			if !ok {
				return nil, nil, fmt.Errorf("method %s: argument %d must be *CallOption, got %T",
					b.method, optIdx, args[optIdx])
			}
			opt = o
		}
	}
	if len(args) > optIdx+1 {
		return nil, nil, fmt.Errorf("method %s: too many arguments", b.method)
	}
	return payload, opt, nil
}

// 负载支持proto.Message和[]byte
func (p *Proxy) marshalPayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case proto.Message:
		data, err := p.opt.Marshaler.Marshal(v)
		if err != nil {
			return nil, errs.Marshal.Printf("%v", err)
		}
		return data, nil
	default:
		return nil, ErrInvalidReqData
	}
}

// ensureConnected 首次调用的发起方独占连接尝试；期间到达的并发调用
// 等待结果而不是竞争重连。首次之后只观测实时状态。
func (p *Proxy) ensureConnected(ctx context.Context) error {
	for {
		switch p.state.Load() {
		case stateConnected:
			if st := ConnectionStatus(p.status.Load()); st != StatusConnected {
				mlog.Warnf("rpc client %s: call rejected, connection status is %v", p.service, st)
				return errs.NotConnected.Printf("service %s", p.service)
			}
			return nil
		case stateFailed:
			return p.connErr
		case stateUninitialized:
			if p.state.CompareAndSwap(stateUninitialized, stateConnecting) {
				go p.runConnect()
			}
		case stateConnecting:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.ready:
			}
		}
	}
}

// runConnect 有限重试预算内反复尝试，成功或用尽后关闭ready唤醒等待者。
// 单次尝试超时算一次重试，不算调用失败。
// 独立于任何调用方context运行：发起方取消只放弃它自己的等待，
// 不中断共享的连接过程，也不会提前进入终态。
func (p *Proxy) runConnect() {
	var lastErr error
	for attempt := 1; attempt <= p.opt.ConnectRetries; attempt++ {
		if err := p.connectOnce(context.Background()); err == nil {
			p.status.Store(int32(StatusConnected))
			p.state.Store(stateConnected)
			close(p.ready)
			go p.watchStatus()
			mlog.Infof("rpc client %s connected", p.service)
			return
		} else {
			lastErr = err
			mlog.Warnf("rpc client %s connect attempt %d/%d failed: %v",
				p.service, attempt, p.opt.ConnectRetries, err)
		}
		if attempt < p.opt.ConnectRetries {
			time.Sleep(p.opt.RetryDelay)
		}
	}
	p.connErr = errs.ConnectFailed.Printf("service %s unable to connect: %v", p.service, lastErr)
	p.state.Store(stateFailed)
	close(p.ready)
	mlog.Errorf("rpc client %s unable to connect: %v", p.service, lastErr)
}

func (p *Proxy) connectOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, p.opt.ConnectTimeout)
	defer cancel()
	statusCh, err := p.tp.Connect(cctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-cctx.Done():
			return cctx.Err()
		case st, ok := <-statusCh:
			if !ok {
				return errors.New("connect status stream closed")
			}
			if st == StatusConnected {
				return nil
			}
		}
	}
}

// watchStatus 消费状态feed，供后续调用检查
func (p *Proxy) watchStatus() {
	for st := range p.tp.Status() {
		p.status.Store(int32(st))
		if st != StatusConnected {
			mlog.Warnf("rpc client %s connection status: %v", p.service, st)
		}
	}
}

// forward 把底层流搬运到调用方，带逐消息的空闲超时
func (p *Proxy) forward(ctx context.Context, b *binding, src <-chan *Response, timeout time.Duration, out chan<- *Response) {
	defer close(out)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			mlog.Warnf("rpc stream %s.%s timed out after %v", p.service, b.method, timeout)
			out <- errResponse(errs.CallTimeout.Printf("%s.%s", p.service, b.method))
			return
		case rsp, ok := <-src:
			if !ok {
				return
			}
			out <- rsp
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		}
	}
}
