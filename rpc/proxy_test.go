package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fixkme/rpckit/errs"
	"github.com/fixkme/rpckit/meta"
)

type sentCall struct {
	kind    uint32
	key     string
	payload []byte
}

// fakeTransport 可编排的传输假件
type fakeTransport struct {
	mu       sync.Mutex
	attempts int
	failAll  bool
	failN    int
	status   chan ConnectionStatus
	sent     []sentCall
	respond  func(kind uint32, key string, payload []byte) <-chan *Response
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status: make(chan ConnectionStatus, 16),
		respond: func(kind uint32, key string, payload []byte) <-chan *Response {
			ch := make(chan *Response, 1)
			ch <- &Response{Payload: []byte("ok")}
			close(ch)
			return ch
		},
	}
}

func (t *fakeTransport) Connect(ctx context.Context) (<-chan ConnectionStatus, error) {
	t.mu.Lock()
	t.attempts++
	n := t.attempts
	t.mu.Unlock()
	if t.failAll || n <= t.failN {
		return nil, errors.New("connection refused")
	}
	ch := make(chan ConnectionStatus, 1)
	ch <- StatusConnected
	return ch, nil
}

func (t *fakeTransport) Status() <-chan ConnectionStatus {
	return t.status
}

func (t *fakeTransport) record(kind uint32, key string, payload []byte) <-chan *Response {
	t.mu.Lock()
	t.sent = append(t.sent, sentCall{kind: kind, key: key, payload: payload})
	t.mu.Unlock()
	return t.respond(kind, key, payload)
}

func (t *fakeTransport) Send(key string, payload []byte) <-chan *Response {
	return t.record(MsgKind_Request, key, payload)
}

func (t *fakeTransport) Emit(key string, payload []byte) <-chan *Response {
	return t.record(MsgKind_Event, key, payload)
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) connectAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

var testRoutes = meta.ServiceRoutes{
	"getUser":     {Key: "users.get", HasPayload: true},
	"ping":        {Key: "users.ping", HasPayload: false},
	"watchUsers$": {Key: "users.watch", HasPayload: true},
	"emitCreated": {Key: "users.created", HasPayload: true},
}

func fastOpt() *ProxyOptions {
	return &ProxyOptions{
		ConnectTimeout: 50 * time.Millisecond,
		ConnectRetries: 5,
		RetryDelay:     time.Millisecond,
		CallTimeout:    time.Second,
	}
}

func TestProxyConnectBudget(t *testing.T) {
	tp := newFakeTransport()
	tp.failAll = true
	p := NewProxy("users", testRoutes, tp, fastOpt())

	_, err := p.Call(context.Background(), "ping")
	if err == nil {
		t.Fatal("expect connect failure")
	}
	if !errs.ConnectFailed.Is(err) {
		t.Fatalf("expect CONNECT_FAILED, got %v", err)
	}
	if got := tp.connectAttempts(); got != 5 {
		t.Fatalf("expect exactly 5 connect attempts, got %d", got)
	}

	// 终态，不再产生第6次尝试
	_, err = p.Call(context.Background(), "ping")
	if err == nil || !errs.ConnectFailed.Is(err) {
		t.Fatalf("expect terminal failure, got %v", err)
	}
	if got := tp.connectAttempts(); got != 5 {
		t.Fatalf("terminal state must not retry, got %d attempts", got)
	}
}

func TestProxyConnectRecovers(t *testing.T) {
	tp := newFakeTransport()
	tp.failN = 3
	p := NewProxy("users", testRoutes, tp, fastOpt())

	rsp, err := p.Call(context.Background(), "ping")
	if err != nil {
		t.Fatal(err)
	}
	if string(rsp.Payload) != "ok" {
		t.Fatalf("got %q", rsp.Payload)
	}
	if got := tp.connectAttempts(); got != 4 {
		t.Fatalf("expect success on attempt 4, got %d", got)
	}
}

// 发起连接的调用方被取消时只放弃自己的等待，
// 连接过程继续推进，后续调用方不受影响
func TestProxyFirstCallerCanceled(t *testing.T) {
	tp := newFakeTransport()
	tp.failN = 1
	opt := fastOpt()
	opt.RetryDelay = 50 * time.Millisecond
	p := NewProxy("users", testRoutes, tp, opt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Call(ctx, "ping")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}

	rsp, err := p.Call(context.Background(), "ping")
	if err != nil {
		t.Fatalf("second caller should connect: %v", err)
	}
	if string(rsp.Payload) != "ok" {
		t.Fatalf("got %q", rsp.Payload)
	}
	if got := tp.connectAttempts(); got != 2 {
		t.Fatalf("expect success on attempt 2, got %d", got)
	}
}

func TestProxyCallShapes(t *testing.T) {
	tp := newFakeTransport()
	p := NewProxy("users", testRoutes, tp, fastOpt())
	ctx := context.Background()

	// 带负载的请求
	if _, err := p.Call(ctx, "getUser", []byte("req")); err != nil {
		t.Fatal(err)
	}
	// 无负载的请求：唯一参数是选项
	if _, err := p.Call(ctx, "ping", &CallOption{Timeout: time.Second}); err != nil {
		t.Fatal(err)
	}
	// 事件走Emit
	out, err := p.Do(ctx, "emitCreated", []byte("evt"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.(<-chan *Response); !ok {
		t.Fatalf("emit must yield a stream, got %T", out)
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if len(tp.sent) != 3 {
		t.Fatalf("expect 3 dispatches, got %d", len(tp.sent))
	}
	if tp.sent[0].key != "users.get" || string(tp.sent[0].payload) != "req" {
		t.Fatalf("got %+v", tp.sent[0])
	}
	if tp.sent[1].key != "users.ping" || tp.sent[1].payload != nil {
		t.Fatalf("got %+v", tp.sent[1])
	}
	if tp.sent[2].kind != MsgKind_Event || tp.sent[2].key != "users.created" {
		t.Fatalf("got %+v", tp.sent[2])
	}
}

func TestProxyArgErrors(t *testing.T) {
	tp := newFakeTransport()
	p := NewProxy("users", testRoutes, tp, fastOpt())
	ctx := context.Background()

	if _, err := p.Call(ctx, "getUser"); err == nil {
		t.Fatal("missing payload must fail")
	}
	if _, err := p.Call(ctx, "ping", []byte("x")); err == nil {
		t.Fatal("non-option argument must fail")
	}
	if _, err := p.Call(ctx, "getUser", []byte("x"), &CallOption{}, 3); err == nil {
		t.Fatal("too many arguments must fail")
	}
	if _, err := p.Call(ctx, "nope"); err == nil || !errs.UnknownMethod.Is(err) {
		t.Fatal("unknown method must fail")
	}
	if _, err := p.Call(ctx, "getUser", struct{}{}); !errors.Is(err, ErrInvalidReqData) {
		t.Fatalf("unsupported payload type, got %v", err)
	}
}

func TestProxyStream(t *testing.T) {
	tp := newFakeTransport()
	tp.respond = func(kind uint32, key string, payload []byte) <-chan *Response {
		ch := make(chan *Response, 3)
		ch <- &Response{Payload: []byte("a")}
		ch <- &Response{Payload: []byte("b")}
		ch <- &Response{Payload: []byte("c")}
		close(ch)
		return ch
	}
	p := NewProxy("users", testRoutes, tp, fastOpt())

	src, err := p.Stream(context.Background(), "watchUsers$", []byte("q"))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for rsp := range src {
		got = append(got, string(rsp.Payload))
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
}

func TestProxyCallTimeout(t *testing.T) {
	tp := newFakeTransport()
	tp.respond = func(kind uint32, key string, payload []byte) <-chan *Response {
		return make(chan *Response) // 永不响应
	}
	p := NewProxy("users", testRoutes, tp, fastOpt())

	_, err := p.Call(context.Background(), "ping", &CallOption{Timeout: 20 * time.Millisecond})
	if err == nil || !errs.CallTimeout.Is(err) {
		t.Fatalf("expect CALL_TIMEOUT, got %v", err)
	}
}

func TestProxyStatusDrop(t *testing.T) {
	tp := newFakeTransport()
	p := NewProxy("users", testRoutes, tp, fastOpt())
	ctx := context.Background()

	if _, err := p.Call(ctx, "ping"); err != nil {
		t.Fatal(err)
	}
	tp.status <- StatusDisconnected
	waitStatus(t, p, StatusDisconnected)

	_, err := p.Call(ctx, "ping")
	if err == nil || !errs.NotConnected.Is(err) {
		t.Fatalf("expect NOT_CONNECTED after status drop, got %v", err)
	}
}

func waitStatus(t *testing.T, p *Proxy, want ConnectionStatus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ConnectionStatus(p.status.Load()) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status never became %v", want)
}

func TestProxyConcurrentFirstCall(t *testing.T) {
	tp := newFakeTransport()
	tp.failN = 2
	p := NewProxy("users", testRoutes, tp, fastOpt())

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Call(context.Background(), "ping")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatal(err)
		}
	}
	// 等待者不参与竞争重连
	if got := tp.connectAttempts(); got != 3 {
		t.Fatalf("expect 3 connect attempts, got %d", got)
	}
}

func TestClientProxyMemoized(t *testing.T) {
	dials := 0
	cli := NewClient(meta.RouteMap{"users": testRoutes}, func(service string) (Transport, error) {
		dials++
		return newFakeTransport(), nil
	}, nil)

	p1, err := cli.Proxy("users")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := cli.Proxy("users")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("proxy must be memoized per service")
	}
	if dials != 1 {
		t.Fatalf("expect a single dial, got %d", dials)
	}
	if _, err := cli.Proxy("orders"); err == nil {
		t.Fatal("unknown service must fail")
	}
	if got := cli.Services(); len(got) != 1 || got[0] != "users" {
		t.Fatalf("got services %v", got)
	}
}
