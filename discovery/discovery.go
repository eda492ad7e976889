package discovery

// Discovery 服务发现，客户端通过它解析服务的rpc地址
type Discovery interface {
	Start() <-chan error

	Stop()

	RegisterService(serviceName string, rpcAddr string) (string, error)

	GetService(serviceName string) (rpcAddr string, err error)

	GetAllService(serviceName string) (rpcAddrs map[string]string, err error)
}
