package scan

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
	"github.com/fixkme/rpckit/str"
)

// RootEnv 选择工作区根目录的环境变量，未设置时取当前目录
const RootEnv = "RPCKIT_ROOT"

const directivePrefix = "//rpckit:"

// RootDir 解析工作区根目录
func RootDir() string {
	if root := os.Getenv(RootEnv); root != "" {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Scanner 遍历服务目录，提取注解过的handler元数据。
// 单条违规只产生诊断并继续扫描，尽量一次跑完收集全部问题。
type Scanner struct {
	Root        string
	ServicesDir string

	fset *token.FileSet
}

func NewScanner(root, servicesDir string) *Scanner {
	if root == "" {
		root = RootDir()
	}
	return &Scanner{
		Root:        root,
		ServicesDir: servicesDir,
		fset:        token.NewFileSet(),
	}
}

// Discover 枚举服务模块：services目录下每个含go源码的子目录算一个服务
func (s *Scanner) Discover() ([]meta.ServiceModule, error) {
	base := filepath.Join(s.Root, s.ServicesDir)
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("read services dir %s: %w", base, err)
	}
	var mods []meta.ServiceModule
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(base, entry.Name())
		if !hasGoFiles(dir) {
			continue
		}
		mods = append(mods, meta.ServiceModule{
			Name:  entry.Name(),
			Kebab: str.KebabCase(entry.Name()),
			Dir:   dir,
		})
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods, nil
}

func hasGoFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go") {
			return true
		}
	}
	return false
}

// Scan 扫描全部服务模块
func (s *Scanner) Scan(diags *Diagnostics) ([]meta.ServiceModule, []meta.HandlerRecord, error) {
	mods, err := s.Discover()
	if err != nil {
		return nil, nil, err
	}
	var records []meta.HandlerRecord
	for i := range mods {
		records = append(records, s.ScanModule(&mods[i], diags)...)
	}
	return mods, records, nil
}

// ScanModule 扫描单个服务模块
func (s *Scanner) ScanModule(mod *meta.ServiceModule, diags *Diagnostics) []meta.HandlerRecord {
	pkgs, err := parser.ParseDir(s.fset, mod.Dir, func(info os.FileInfo) bool {
		return !strings.HasSuffix(info.Name(), "_test.go")
	}, parser.ParseComments)
	if err != nil {
		diags.Add(fmt.Sprintf("parse %s: %v", mod.Dir, err))
		return nil
	}

	var files []*ast.File
	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return s.fset.Position(files[i].Pos()).Filename < s.fset.Position(files[j].Pos()).Filename
	})

	resolver := newKeyResolver(files)
	eventShape := regexp.MustCompile("^" + regexp.QuoteMeta(mod.Kebab) + `\.([A-Za-z][A-Za-z0-9_-]*)$`)

	var records []meta.HandlerRecord
	for _, file := range files {
		filename := s.fset.Position(file.Pos()).Filename
		fileUsed := false
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Doc == nil {
				continue
			}
			dir, ok, derr := parseDirective(fn.Doc)
			if derr != nil {
				diags.Addf(s.fset.Position(fn.Pos()), "%s.%s: %v", mod.Name, fn.Name.Name, derr)
				continue
			}
			if !ok {
				continue
			}
			rec, ok := s.extractHandler(mod, resolver, eventShape, file, fn, dir, diags)
			if ok {
				rec.File = filename
				records = append(records, rec)
				fileUsed = true
			}
		}
		if fileUsed {
			mod.Files = append(mod.Files, filename)
		}
	}
	mlog.Debugf("scanned service %s: %d handlers", mod.Name, len(records))
	return records
}

// extractHandler 提取单个注解方法；任何一条校验不过只产生诊断，不产生记录。
func (s *Scanner) extractHandler(mod *meta.ServiceModule, resolver *keyResolver, eventShape *regexp.Regexp,
	file *ast.File, fn *ast.FuncDecl, dir *directive, diags *Diagnostics) (meta.HandlerRecord, bool) {

	pos := s.fset.Position(fn.Pos())
	none := meta.HandlerRecord{}

	owner, ok := receiverName(fn)
	if !ok {
		diags.Addf(pos, "%s.%s: handler receiver must be a named struct type", mod.Name, fn.Name.Name)
		return none, false
	}
	if !ast.IsExported(owner) {
		diags.Addf(pos, "%s.%s: handler type %s must be exported", mod.Name, fn.Name.Name, owner)
		return none, false
	}

	key, err := resolver.Resolve(dir.key)
	if err != nil {
		diags.Addf(pos, "%s.%s: cannot resolve routing key %s: %v", mod.Name, fn.Name.Name, dir.key, err)
		return none, false
	}
	if meta.Empty(key) {
		diags.Addf(pos, "%s.%s: routing key %s resolves to an empty value", mod.Name, fn.Name.Name, dir.key)
		return none, false
	}

	rec := meta.HandlerRecord{
		Service:      mod.Name,
		ServiceKebab: mod.Kebab,
		Owner:        owner,
		HandlerName:  fn.Name.Name,
		Kind:         dir.kind,
		KeyExpr:      dir.key,
		Key:          key,
		Pos:          fmt.Sprintf("%s:%d:%d", pos.Filename, pos.Line, pos.Column),
	}

	rec.Params, rec.Results = s.signature(fn)
	rec.PayloadIndex, err = payloadIndex(rec.Params, dir.payload)
	if err != nil {
		diags.Addf(pos, "%s.%s: %v", mod.Name, fn.Name.Name, err)
		return none, false
	}

	switch dir.kind {
	case meta.KindEvent:
		keyStr, ok := key.(string)
		if !ok {
			diags.Addf(pos, "%s.%s: event routing key must be a string, got %s",
				mod.Name, fn.Name.Name, meta.Render(key))
			return none, false
		}
		m := eventShape.FindStringSubmatch(keyStr)
		if m == nil {
			diags.Addf(pos, "%s.%s: event routing key %q must have shape %q",
				mod.Name, fn.Name.Name, keyStr, mod.Kebab+".<event>")
			return none, false
		}
		rec.EventName = m[1]
		rec.Method = meta.EmitPrefix + str.CamelCase(rec.EventName)
	case meta.KindRequest:
		method := str.LowerFirst(fn.Name.Name)
		if meta.IsEmit(method) {
			diags.Addf(pos, "%s.%s: request method name must not start with the reserved %q prefix",
				mod.Name, fn.Name.Name, meta.EmitPrefix)
			return none, false
		}
		if dir.stream {
			method += meta.StreamMarker
		}
		rec.Method = method
	}
	return rec, true
}

func receiverName(fn *ast.FuncDecl) (string, bool) {
	if len(fn.Recv.List) != 1 {
		return "", false
	}
	expr := fn.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	ident, ok := expr.(*ast.Ident)
	if !ok {
		return "", false
	}
	return ident.Name, true
}

// signature 提出除receiver外的参数和返回值类型文本
func (s *Scanner) signature(fn *ast.FuncDecl) ([]meta.Param, []string) {
	var params []meta.Param
	if fn.Type.Params != nil {
		for _, field := range fn.Type.Params.List {
			typeStr := s.exprString(field.Type)
			if len(field.Names) == 0 {
				params = append(params, meta.Param{Type: typeStr})
				continue
			}
			for _, name := range field.Names {
				params = append(params, meta.Param{Name: name.Name, Type: typeStr})
			}
		}
	}
	var results []string
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			typeStr := s.exprString(field.Type)
			n := len(field.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				results = append(results, typeStr)
			}
		}
	}
	return params, results
}

func (s *Scanner) exprString(expr ast.Expr) string {
	sb := &strings.Builder{}
	if err := printer.Fprint(sb, s.fset, expr); err != nil {
		return ""
	}
	return sb.String()
}

// payloadIndex 负载参数下标：payload=指名的参数优先，
// 其次第一个非context参数，否则-1。
func payloadIndex(params []meta.Param, payloadName string) (int, error) {
	if payloadName != "" {
		for i, p := range params {
			if p.Name == payloadName {
				return i, nil
			}
		}
		return -1, fmt.Errorf("payload parameter %q not found", payloadName)
	}
	for i, p := range params {
		if isContextType(p.Type) {
			continue
		}
		return i, nil
	}
	return -1, nil
}

// 只认标准库的context.Context，服务自己名叫Context的类型是合法负载
func isContextType(typeStr string) bool {
	return typeStr == "context.Context"
}

// directive 一条handler注解
type directive struct {
	kind    meta.HandlerKind
	key     string
	payload string
	stream  bool
}

// parseDirective 在doc注释里找 //rpckit: 注解行。
// 形如 //rpckit:request key=<key-ref> [payload=<param>] [stream]
func parseDirective(doc *ast.CommentGroup) (*directive, bool, error) {
	for _, comment := range doc.List {
		text := comment.Text
		if !strings.HasPrefix(text, directivePrefix) {
			continue
		}
		rest := text[len(directivePrefix):]
		fields := splitDirective(rest)
		if len(fields) == 0 {
			return nil, false, fmt.Errorf("empty rpckit directive")
		}
		d := &directive{}
		switch fields[0] {
		case "request":
			d.kind = meta.KindRequest
		case "event":
			d.kind = meta.KindEvent
		default:
			return nil, false, fmt.Errorf("unknown rpckit directive %q", fields[0])
		}
		for _, opt := range fields[1:] {
			switch {
			case strings.HasPrefix(opt, "key="):
				d.key = opt[len("key="):]
			case strings.HasPrefix(opt, "payload="):
				d.payload = opt[len("payload="):]
			case opt == "stream":
				d.stream = true
			default:
				return nil, false, fmt.Errorf("unknown rpckit directive option %q", opt)
			}
		}
		if d.key == "" {
			return nil, false, fmt.Errorf("rpckit directive is missing key=")
		}
		if d.kind == meta.KindEvent && d.stream {
			return nil, false, fmt.Errorf("stream option is only valid on request handlers")
		}
		return d, true, nil
	}
	return nil, false, nil
}

// splitDirective 按空白切分注解选项。key=后面允许带空白的JSON字面量，
// 引号内与中括号/大括号深度内的空白不切分
func splitDirective(rest string) []string {
	var fields []string
	n := len(rest)
	i := 0
	for i < n {
		for i < n && (rest[i] == ' ' || rest[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}
		start := i
		depth := 0
		inStr := false
		for i < n {
			c := rest[i]
			if !inStr && depth <= 0 && (c == ' ' || c == '\t') {
				break
			}
			switch {
			case inStr:
				if c == '\\' && i+1 < n {
					i++
				} else if c == '"' {
					inStr = false
				}
			case c == '"':
				inStr = true
			case c == '[' || c == '{':
				depth++
			case c == ']' || c == '}':
				depth--
			}
			i++
		}
		fields = append(fields, rest[start:i])
	}
	return fields
}
