package gen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strconv"
	"strings"

	"github.com/fixkme/rpckit/meta"
)

// routeMapSource 生成全局路由表的Go源码
func (g *Generator) routeMapSource(rm meta.RouteMap) ([]byte, error) {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "// Code generated by rpcgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(buf, "package %s\n\n", g.opt.OutPkg)
	fmt.Fprintf(buf, "import \"github.com/fixkme/rpckit/meta\"\n\n")
	fmt.Fprintf(buf, "// Routes 服务 => 客户端方法 => (路由key, 是否有负载)\n")
	fmt.Fprintf(buf, "var Routes = meta.RouteMap{\n")
	for _, service := range rm.Services() {
		routes := rm[service]
		fmt.Fprintf(buf, "\t%s: {\n", strconv.Quote(service))
		for _, method := range routes.Methods() {
			route := routes[method]
			fmt.Fprintf(buf, "\t\t%s: {Key: %s, HasPayload: %v},\n",
				strconv.Quote(method), goLiteral(route.Key), route.HasPayload)
		}
		fmt.Fprintf(buf, "\t},\n")
	}
	fmt.Fprintf(buf, "}\n")
	return format.Source(buf.Bytes())
}

// goLiteral 把路由key字面值渲染成Go源码
func goLiteral(v meta.Value) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("float64(%d)", int64(val))
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []meta.Value:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			parts = append(parts, goLiteral(e))
		}
		return "[]meta.Value{" + strings.Join(parts, ", ") + "}"
	case map[string]meta.Value:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, strconv.Quote(k)+": "+goLiteral(val[k]))
		}
		return "map[string]meta.Value{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%#v", val)
	}
}
