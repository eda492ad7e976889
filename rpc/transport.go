package rpc

import (
	"context"
	"errors"

	"github.com/fixkme/rpckit/errs"
)

// ConnectionStatus 传输连接的实时状态
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return "disconnected"
}

// Transport 底层传输客户端。本包只消费这四个操作，不关心传输内部实现。
// 流以channel形式交付：响应流在末条消息后关闭。
type Transport interface {
	// Connect 发起连接，返回本次连接的状态流
	Connect(ctx context.Context) (<-chan ConnectionStatus, error)
	// Status 连接状态的实时feed
	Status() <-chan ConnectionStatus
	// Send 请求/响应派发
	Send(key string, payload []byte) <-chan *Response
	// Emit 事件派发，返回ack流
	Emit(key string, payload []byte) <-chan *Response
	Close() error
}

// Response 传输层交付的一条响应或ack
type Response struct {
	Payload []byte
	Ecode   int32
	Error   string
}

// Err 远端错误，无错返回nil
func (r *Response) Err() error {
	if r == nil {
		return errors.New("nil response")
	}
	if r.Error == "" {
		return nil
	}
	if r.Ecode != 0 {
		return errs.CreateCodeError(r.Ecode, r.Error)
	}
	return errors.New(r.Error)
}

func errResponse(err error) *Response {
	if ce, ok := err.(errs.CodeError); ok {
		return &Response{Ecode: ce.Code(), Error: ce.Error()}
	}
	return &Response{Ecode: errs.ErrCode_Unknown, Error: err.Error()}
}
