package gen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/str"
)

// interfaceSource 生成单个服务的客户端接口源码。
// 方法签名复用handler自己的参数/返回值类型表达式，不重新声明。
func (g *Generator) interfaceSource(service string, records []meta.HandlerRecord) ([]byte, error) {
	pkgIdent := strings.ReplaceAll(str.KebabCase(service), "-", "")
	ifaceName := str.CamelCase(service) + "Client"

	var requests []meta.HandlerRecord
	eventGroups := make(map[string][]meta.HandlerRecord)
	for _, rec := range records {
		if rec.Kind == meta.KindEvent {
			eventGroups[rec.Method] = append(eventGroups[rec.Method], rec)
		} else {
			requests = append(requests, rec)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].Method < requests[j].Method })
	eventMethods := make([]string, 0, len(eventGroups))
	for m := range eventGroups {
		eventMethods = append(eventMethods, m)
	}
	sort.Strings(eventMethods)

	usesService := false
	usesProto := false
	body := &bytes.Buffer{}

	for _, rec := range requests {
		payloadPart := ""
		if rec.HasPayload() {
			pt, used := qualifyType(rec.Params[rec.PayloadIndex].Type, pkgIdent)
			usesService = usesService || used
			payloadPart = fmt.Sprintf(", payload %s", pt)
		}
		result, used := requestResult(rec, pkgIdent)
		usesService = usesService || used
		stream := strings.HasSuffix(rec.Method, meta.StreamMarker)
		if stream {
			result = "<-chan " + result
		}
		fmt.Fprintf(body, "\t// %s => %s (%s.%s)\n",
			exportedName(rec.Method), meta.KeyString(rec.Key), rec.OwnerRef(), rec.HandlerName)
		fmt.Fprintf(body, "\t%s(ctx context.Context%s, opts ...*rpc.CallOption) (%s, error)\n\n",
			exportedName(rec.Method), payloadPart, result)
	}

	for _, method := range eventMethods {
		group := eventGroups[method]
		payloadPart := ""
		pt, used, isProto := eventPayloadType(group, pkgIdent)
		if pt != "" {
			usesService = usesService || used
			usesProto = usesProto || isProto
			payloadPart = fmt.Sprintf(", payload %s", pt)
		}
		fmt.Fprintf(body, "\t// %s => %s", exportedName(method), meta.KeyString(group[0].Key))
		if len(group) > 1 {
			consumers := make([]string, 0, len(group))
			for _, rec := range group {
				consumers = append(consumers, rec.OwnerRef()+"."+rec.HandlerName)
			}
			fmt.Fprintf(body, " (consumers: %s)", strings.Join(consumers, ", "))
		} else {
			fmt.Fprintf(body, " (%s.%s)", group[0].OwnerRef(), group[0].HandlerName)
		}
		fmt.Fprintf(body, "\n\t%s(ctx context.Context%s, opts ...*rpc.CallOption) (<-chan *rpc.Response, error)\n\n",
			exportedName(method), payloadPart)
	}

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "// Code generated by rpcgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(buf, "package %s\n\n", g.opt.OutPkg)
	fmt.Fprintf(buf, "import (\n")
	fmt.Fprintf(buf, "\t\"context\"\n\n")
	if usesService && g.opt.ImportBase != "" {
		fmt.Fprintf(buf, "\t%s \"%s/%s\"\n", pkgIdent, g.opt.ImportBase, service)
	}
	if usesProto {
		fmt.Fprintf(buf, "\t\"google.golang.org/protobuf/proto\"\n")
	}
	fmt.Fprintf(buf, "\t\"github.com/fixkme/rpckit/rpc\"\n")
	fmt.Fprintf(buf, ")\n\n")
	fmt.Fprintf(buf, "// %s %s服务的调用代理接口\n", ifaceName, service)
	fmt.Fprintf(buf, "type %s interface {\n", ifaceName)
	buf.Write(body.Bytes())
	fmt.Fprintf(buf, "}\n")
	return format.Source(buf.Bytes())
}

func exportedName(method string) string {
	return str.UpperFirst(strings.TrimSuffix(method, meta.StreamMarker))
}

// requestResult handler第一个非error返回值，没有就退到*rpc.Response
func requestResult(rec meta.HandlerRecord, pkg string) (string, bool) {
	for _, r := range rec.Results {
		if r == "error" {
			continue
		}
		return qualifyType(r, pkg)
	}
	return "*rpc.Response", false
}

// eventPayloadType 事件组的负载类型。所有消费者一致时用该类型，
// 不一致时保守退到proto.Message，调用方必须满足每个消费者。
func eventPayloadType(group []meta.HandlerRecord, pkg string) (typeStr string, usesService, usesProto bool) {
	var types []string
	for _, rec := range group {
		if rec.HasPayload() {
			types = append(types, rec.Params[rec.PayloadIndex].Type)
		}
	}
	if len(types) == 0 {
		return "", false, false
	}
	same := true
	for _, t := range types[1:] {
		if t != types[0] {
			same = false
			break
		}
	}
	if !same {
		return "proto.Message", false, true
	}
	qt, used := qualifyType(types[0], pkg)
	return qt, used, false
}

// qualifyType 给服务包内的裸类型标识符加上包限定
func qualifyType(typeStr, pkg string) (string, bool) {
	expr, err := parser.ParseExpr(typeStr)
	if err != nil {
		return typeStr, false
	}
	used := false
	result := astutil.Apply(expr, func(c *astutil.Cursor) bool {
		ident, ok := c.Node().(*ast.Ident)
		if !ok {
			return true
		}
		// selector的右侧不动
		if sel, ok := c.Parent().(*ast.SelectorExpr); ok && sel.Sel == ident {
			return true
		}
		// 预声明标识符(int、string、error...)都是小写，IsExported即可筛掉
		if !ast.IsExported(ident.Name) {
			return true
		}
		used = true
		c.Replace(&ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(ident.Name)})
		return true
	}, nil)
	sb := &strings.Builder{}
	if err := printer.Fprint(sb, token.NewFileSet(), result); err != nil {
		return typeStr, false
	}
	return sb.String(), used
}
