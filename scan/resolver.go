package scan

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"github.com/fixkme/rpckit/meta"
)

// keyResolver 把注解里的key引用落成具体字面值。
// 优先级：key本身是字面量则直接取值；否则按包级常量/变量声明收拢，
// 复合字面量逐元素递归；落不到单一值就失败。
type keyResolver struct {
	// 包级 const/var 单值声明：标识符 => 初始化表达式
	decls map[string]ast.Expr
	// 包内struct类型声明：类型名 => 结构体定义
	structs map[string]*ast.StructType
}

func newKeyResolver(files []*ast.File) *keyResolver {
	r := &keyResolver{
		decls:   make(map[string]ast.Expr),
		structs: make(map[string]*ast.StructType),
	}
	for _, file := range files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok {
				continue
			}
			switch gd.Tok {
			case token.CONST, token.VAR:
				for _, spec := range gd.Specs {
					vs, ok := spec.(*ast.ValueSpec)
					if !ok {
						continue
					}
					for i, name := range vs.Names {
						if i < len(vs.Values) {
							r.decls[name.Name] = vs.Values[i]
						}
					}
				}
			case token.TYPE:
				for _, spec := range gd.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					if st, ok := ts.Type.(*ast.StructType); ok {
						r.structs[ts.Name.Name] = st
					}
				}
			}
		}
	}
	return r
}

// Resolve 解析注解文本形式的key引用
func (r *keyResolver) Resolve(keyRef string) (meta.Value, error) {
	keyRef = strings.TrimSpace(keyRef)
	if keyRef == "" {
		return nil, fmt.Errorf("empty key reference")
	}
	if isLiteralRef(keyRef) {
		var v meta.Value
		if err := json.Unmarshal([]byte(keyRef), &v); err != nil {
			return nil, fmt.Errorf("malformed key literal %s: %w", keyRef, err)
		}
		return v, nil
	}
	return r.resolveIdent(keyRef, nil)
}

func isLiteralRef(s string) bool {
	switch s[0] {
	case '"', '[', '{', '-':
		return true
	}
	if s[0] >= '0' && s[0] <= '9' {
		return true
	}
	return s == "true" || s == "false" || s == "null"
}

func (r *keyResolver) resolveIdent(name string, seen []string) (meta.Value, error) {
	for _, s := range seen {
		if s == name {
			return nil, fmt.Errorf("cyclic declaration %s", name)
		}
	}
	expr, ok := r.decls[name]
	if !ok {
		return nil, fmt.Errorf("no package-level declaration for %s", name)
	}
	return r.collapse(expr, append(seen, name))
}

// collapse 把声明的初始化表达式收拢成字面值
func (r *keyResolver) collapse(expr ast.Expr, seen []string) (meta.Value, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return collapseBasicLit(e)
	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, fmt.Errorf("nil is not a routing key value")
		}
		return r.resolveIdent(e.Name, seen)
	case *ast.ParenExpr:
		return r.collapse(e.X, seen)
	case *ast.UnaryExpr:
		if e.Op != token.SUB {
			return nil, fmt.Errorf("cannot reduce %s expression to a literal", e.Op)
		}
		v, err := r.collapse(e.X, seen)
		if err != nil {
			return nil, err
		}
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("unary minus on non-number")
		}
		return -n, nil
	case *ast.CompositeLit:
		return r.collapseComposite(e, seen)
	case *ast.CallExpr:
		// 类型转换形如 RouteKey("users.create")
		if len(e.Args) == 1 {
			if _, ok := e.Fun.(*ast.Ident); ok {
				return r.collapse(e.Args[0], seen)
			}
		}
		return nil, fmt.Errorf("cannot reduce call expression to a literal")
	default:
		return nil, fmt.Errorf("expression %T denotes no single value", expr)
	}
}

func collapseBasicLit(lit *ast.BasicLit) (meta.Value, error) {
	switch lit.Kind {
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return float64(n), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%s literal is not a routing key value", lit.Kind)
	}
}

// collapseComposite 数组/切片字面量逐元素收拢为元组，
// struct字面量收拢为 字段名=>值 的映射，
// 未写字段名的struct字面量按声明顺序对应字段。
func (r *keyResolver) collapseComposite(lit *ast.CompositeLit, seen []string) (meta.Value, error) {
	keyed := false
	for _, elt := range lit.Elts {
		if _, ok := elt.(*ast.KeyValueExpr); ok {
			keyed = true
			break
		}
	}
	if !keyed {
		if st := r.structOf(lit.Type); st != nil {
			return r.collapseUnkeyedStruct(st, lit, seen)
		}
		if _, ok := lit.Type.(*ast.SelectorExpr); ok {
			return nil, fmt.Errorf("unkeyed literal of imported type, field names unknown")
		}
		tuple := make([]meta.Value, 0, len(lit.Elts))
		for _, elt := range lit.Elts {
			v, err := r.collapse(elt, seen)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, v)
		}
		return tuple, nil
	}
	obj := make(map[string]meta.Value, len(lit.Elts))
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			return nil, fmt.Errorf("mixed composite literal")
		}
		var field string
		switch k := kv.Key.(type) {
		case *ast.Ident:
			field = k.Name
		case *ast.BasicLit:
			if k.Kind != token.STRING {
				return nil, fmt.Errorf("composite key must be a field name or string")
			}
			s, err := strconv.Unquote(k.Value)
			if err != nil {
				return nil, err
			}
			field = s
		default:
			return nil, fmt.Errorf("composite key %T denotes no single value", kv.Key)
		}
		v, err := r.collapse(kv.Value, seen)
		if err != nil {
			return nil, err
		}
		obj[field] = v
	}
	return obj, nil
}

func (r *keyResolver) structOf(t ast.Expr) *ast.StructType {
	id, ok := t.(*ast.Ident)
	if !ok {
		return nil
	}
	return r.structs[id.Name]
}

func (r *keyResolver) collapseUnkeyedStruct(st *ast.StructType, lit *ast.CompositeLit, seen []string) (meta.Value, error) {
	names := structFieldNames(st)
	if len(lit.Elts) != len(names) {
		return nil, fmt.Errorf("struct literal has %d values for %d fields", len(lit.Elts), len(names))
	}
	obj := make(map[string]meta.Value, len(names))
	for i, elt := range lit.Elts {
		v, err := r.collapse(elt, seen)
		if err != nil {
			return nil, err
		}
		obj[names[i]] = v
	}
	return obj, nil
}

func structFieldNames(st *ast.StructType) []string {
	var names []string
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			// 匿名字段取类型名
			switch t := f.Type.(type) {
			case *ast.Ident:
				names = append(names, t.Name)
			case *ast.SelectorExpr:
				names = append(names, t.Sel.Name)
			default:
				names = append(names, "")
			}
			continue
		}
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
	}
	return names
}
