package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fixkme/rpckit/errs"
	"github.com/fixkme/rpckit/mlog"
	"github.com/panjf2000/gnet/v2"
	"github.com/rs/xid"
)

// GnetTransport 基于gnet的传输客户端实现。
// 每次连接尝试用resolve重新解析目标地址，未决调用按关联id路由响应，
// 服务端在流的末条消息上置Eos。
type GnetTransport struct {
	resolve func() (string, error)

	cli       *gnet.Client
	startOnce sync.Once
	startErr  error
	started   atomic.Bool
	closed    atomic.Bool

	mtx     sync.Mutex
	conn    gnet.Conn
	pending map[string]chan *Response

	status chan ConnectionStatus
}

var _ Transport = (*GnetTransport)(nil)

type gnetEvents struct {
	gnet.BuiltinEventEngine
	t *GnetTransport
}

func NewGnetTransport(resolve func() (string, error)) (*GnetTransport, error) {
	t := &GnetTransport{
		resolve: resolve,
		pending: make(map[string]chan *Response),
		status:  make(chan ConnectionStatus, 16),
	}
	cli, err := gnet.NewClient(&gnetEvents{t: t}, gnet.WithMulticore(true))
	if err != nil {
		return nil, err
	}
	t.cli = cli
	return t, nil
}

// Connect 解析地址并拨号，返回本次连接尝试的状态流
func (t *GnetTransport) Connect(ctx context.Context) (<-chan ConnectionStatus, error) {
	if t.closed.Load() {
		return nil, errors.New("transport closed")
	}
	t.startOnce.Do(func() {
		t.startErr = t.cli.Start()
		if t.startErr == nil {
			t.started.Store(true)
		}
	})
	if t.startErr != nil {
		return nil, t.startErr
	}
	addr, err := t.resolve()
	if err != nil {
		return nil, err
	}
	ch := make(chan ConnectionStatus, 4)
	pushStatus(ch, StatusConnecting)
	pushStatus(t.status, StatusConnecting)

	conn, err := t.cli.DialContext("tcp", addr, ctx)
	if err != nil {
		pushStatus(ch, StatusDisconnected)
		pushStatus(t.status, StatusDisconnected)
		return nil, err
	}
	t.mtx.Lock()
	t.conn = conn
	t.mtx.Unlock()
	pushStatus(ch, StatusConnected)
	pushStatus(t.status, StatusConnected)
	return ch, nil
}

func (t *GnetTransport) Status() <-chan ConnectionStatus {
	return t.status
}

func (t *GnetTransport) Send(key string, payload []byte) <-chan *Response {
	return t.request(MsgKind_Request, key, payload)
}

func (t *GnetTransport) Emit(key string, payload []byte) <-chan *Response {
	return t.request(MsgKind_Event, key, payload)
}

func (t *GnetTransport) request(kind uint32, key string, payload []byte) <-chan *Response {
	ch := make(chan *Response, 8)
	id := xid.New().String()
	env := &Envelope{Id: id, Kind: kind, Key: key, Payload: payload}

	t.mtx.Lock()
	conn := t.conn
	if conn == nil {
		t.mtx.Unlock()
		ch <- errResponse(errs.NotConnected.Printf("key %s", key))
		close(ch)
		return ch
	}
	t.pending[id] = ch
	t.mtx.Unlock()

	err := conn.AsyncWritev(env.Frame(), func(c gnet.Conn, serr error) error {
		if serr != nil {
			t.fail(id, serr)
		}
		return nil
	})
	if err != nil {
		t.fail(id, err)
	}
	return ch
}

// fail 以错误结束一个未决调用
func (t *GnetTransport) fail(id string, err error) {
	t.mtx.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mtx.Unlock()
	if ok {
		ch <- errResponse(err)
		close(ch)
	}
}

func (t *GnetTransport) Close() error {
	t.closed.Store(true)
	t.mtx.Lock()
	conn := t.conn
	t.conn = nil
	t.mtx.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			mlog.Errorf("gnet transport close conn error: %v", err)
		}
	}
	// 从未启动过的引擎没有可停的东西
	if !t.started.Load() {
		return nil
	}
	return t.cli.Stop()
}

func (ev *gnetEvents) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	mlog.Debugf("gnet transport conn open: %s", c.RemoteAddr())
	return nil, gnet.None
}

func (ev *gnetEvents) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	t := ev.t
	mlog.Warnf("gnet transport conn closed: %v", err)
	t.mtx.Lock()
	if t.conn == c {
		t.conn = nil
	}
	orphans := t.pending
	t.pending = make(map[string]chan *Response)
	t.mtx.Unlock()
	for _, ch := range orphans {
		ch <- errResponse(errs.NotConnected.Printf("connection closed"))
		close(ch)
	}
	pushStatus(t.status, StatusDisconnected)
	return gnet.None
}

func (ev *gnetEvents) OnTraffic(c gnet.Conn) (action gnet.Action) {
	t := ev.t
	for {
		msg, err := readFrame(c)
		if err != nil {
			mlog.Errorf("gnet transport decode error: %v", err)
			return gnet.Close
		}
		if msg == nil {
			return gnet.None
		}
		t.deliver(msg)
	}
}

func (t *GnetTransport) deliver(msg *Envelope) {
	t.mtx.Lock()
	ch, ok := t.pending[msg.Id]
	if ok && msg.Eos {
		delete(t.pending, msg.Id)
	}
	t.mtx.Unlock()
	if !ok {
		mlog.Debugf("no pending call for message id %s", msg.Id)
		return
	}
	ch <- &Response{Payload: msg.Payload, Ecode: msg.Ecode, Error: msg.Error}
	if msg.Eos {
		close(ch)
	}
}

func pushStatus(ch chan ConnectionStatus, st ConnectionStatus) {
	select {
	case ch <- st:
	default:
	}
}
