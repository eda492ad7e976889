package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// StreamMarker 客户端方法名的流式标记后缀
const StreamMarker = "$"

// EmitPrefix 事件方法的保留前缀
const EmitPrefix = "emit"

// Route 一条客户端方法的运行期契约，JSON形式为 [key, hasPayload]。
type Route struct {
	Key        Value
	HasPayload bool
}

func (r Route) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Key, r.HasPayload})
}

func (r *Route) UnmarshalJSON(data []byte) error {
	var tuple [2]any
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	hasPayload, ok := tuple[1].(bool)
	if !ok {
		return fmt.Errorf("route tuple: second element must be bool, got %T", tuple[1])
	}
	r.Key = tuple[0]
	r.HasPayload = hasPayload
	return nil
}

// ServiceRoutes 客户端方法名 => Route
type ServiceRoutes map[string]Route

// RouteMap 服务名 => ServiceRoutes。生成一次，运行期只读。
type RouteMap map[string]ServiceRoutes

// IsStream 按方法名判定返回形态：'$'后缀或emit前缀都是多值流。
func IsStream(method string) bool {
	return strings.HasSuffix(method, StreamMarker) || IsEmit(method)
}

// IsEmit 按方法名判定派发模式
func IsEmit(method string) bool {
	return strings.HasPrefix(method, EmitPrefix)
}

// Services 排序后的服务名
func (rm RouteMap) Services() []string {
	names := make([]string, 0, len(rm))
	for name := range rm {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods 排序后的客户端方法名
func (sr ServiceRoutes) Methods() []string {
	names := make([]string, 0, len(sr))
	for name := range sr {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SaveFile 写出JSON路由表产物
func (rm RouteMap) SaveFile(path string) error {
	data, err := json.MarshalIndent(rm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadRouteMap 服务启动时加载路由表产物
func LoadRouteMap(path string) (RouteMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rm := RouteMap{}
	if err := json.Unmarshal(data, &rm); err != nil {
		return nil, fmt.Errorf("parse route map %s: %w", path, err)
	}
	return rm, nil
}
