package errs

const (
	ErrCode_OK            = 0
	ErrCode_Unknown       = 1
	ErrCode_Unmarshal     = 2
	ErrCode_Marshal       = 3
	ErrCode_ConnectFailed = 4
	ErrCode_NotConnected  = 5
	ErrCode_CallTimeout   = 6
	ErrCode_UnknownMethod = 7
	ErrCode_Remote        = 8
)

var (
	Unknown       = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	Unmarshal     = CreateCodeError(ErrCode_Unmarshal, "UNMARSHAL")
	Marshal       = CreateCodeError(ErrCode_Marshal, "MARSHAL")
	ConnectFailed = CreateCodeError(ErrCode_ConnectFailed, "CONNECT_FAILED")
	NotConnected  = CreateCodeError(ErrCode_NotConnected, "NOT_CONNECTED")
	CallTimeout   = CreateCodeError(ErrCode_CallTimeout, "CALL_TIMEOUT")
	UnknownMethod = CreateCodeError(ErrCode_UnknownMethod, "UNKNOWN_METHOD")
)
