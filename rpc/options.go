package rpc

import (
	"time"

	"google.golang.org/protobuf/proto"
)

const (
	// DefaultConnectTimeout 单次连接尝试的超时
	DefaultConnectTimeout = 2000 * time.Millisecond
	// DefaultConnectRetries 首次调用允许的连接尝试总数
	DefaultConnectRetries = 5
	// DefaultRetryDelay 两次连接尝试之间的固定间隔
	DefaultRetryDelay = 3000 * time.Millisecond
	// DefaultCallTimeout 单次调用的默认超时，独立于连接超时
	DefaultCallTimeout = 5000 * time.Millisecond
)

type ProxyOptions struct {
	ConnectTimeout time.Duration
	ConnectRetries int
	RetryDelay     time.Duration
	CallTimeout    time.Duration

	Marshaler *proto.MarshalOptions
}

var defaultProxyOpt = &ProxyOptions{
	ConnectTimeout: DefaultConnectTimeout,
	ConnectRetries: DefaultConnectRetries,
	RetryDelay:     DefaultRetryDelay,
	CallTimeout:    DefaultCallTimeout,
	Marshaler:      &proto.MarshalOptions{AllowPartial: true},
}

func initProxyOpt(opt *ProxyOptions) *ProxyOptions {
	if opt == nil {
		return defaultProxyOpt
	}
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.ConnectRetries <= 0 {
		opt.ConnectRetries = DefaultConnectRetries
	}
	if opt.RetryDelay <= 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.CallTimeout <= 0 {
		opt.CallTimeout = DefaultCallTimeout
	}
	if opt.Marshaler == nil {
		opt.Marshaler = defaultProxyOpt.Marshaler
	}
	return opt
}

// CallOption 单次调用的可选项
type CallOption struct {
	Timeout time.Duration // 超时覆盖，零值用默认5000ms
}

var defaultCallOption = &CallOption{}
