package meta

// HandlerKind 处理器类别
type HandlerKind int

const (
	KindRequest HandlerKind = iota
	KindEvent
)

func (k HandlerKind) String() string {
	if k == KindEvent {
		return "event"
	}
	return "request"
}

// ServiceModule 一个服务目录
type ServiceModule struct {
	Name  string   // 目录名
	Kebab string   // 路由命名空间，如 UserAccounts => user-accounts
	Dir   string   // 绝对路径
	Files []string // 已发现的handler文件（有序）
}

// Param handler方法的一个参数
type Param struct {
	Name string
	Type string // 源码里的类型表达式
}

// HandlerRecord 提取出的一条handler元数据
type HandlerRecord struct {
	Service      string // 服务名
	ServiceKebab string
	Owner        string // 声明该方法的struct类型名
	OwnerAlias   string // 同名struct冲突时由校验器填充：<ServiceName><Owner>
	Method       string // 客户端方法名（路由表key），lowerCamel，流式带'$'后缀
	HandlerName  string // 源码里的方法名
	Kind         HandlerKind
	EventName    string // 仅事件类

	KeyExpr      string // 注解里的key引用原文
	Key          Value  // 解析出的字面值
	PayloadIndex int    // 负载参数下标，-1表示无负载

	Params  []Param  // 除receiver外的全部参数
	Results []string // 返回值类型表达式

	File string // 所在文件
	Pos  string // file:line:column
}

// HasPayload 是否携带负载
func (r *HandlerRecord) HasPayload() bool {
	return r.PayloadIndex >= 0
}

// OwnerRef 生成期引用的struct名，冲突时用别名
func (r *HandlerRecord) OwnerRef() string {
	if r.OwnerAlias != "" {
		return r.OwnerAlias
	}
	return r.Owner
}
