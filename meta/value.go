package meta

import (
	"encoding/json"
	"sort"
	"strings"
)

// Value 路由key的字面值：string、bool、float64、[]Value、map[string]Value之一。
// 生成期产物，运行期只读。
type Value = any

// Render 以稳定的JSON形式输出v，map按key排序。
func Render(v Value) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []Value:
		b := strings.Builder{}
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(Render(e))
		}
		b.WriteByte(']')
		return b.String()
	case map[string]Value:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := strings.Builder{}
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			b.WriteString(Render(val[k]))
		}
		b.WriteByte('}')
		return b.String()
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// KeyString 运行期的寻址字符串：string值原样，其余取Render形式。
func KeyString(v Value) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Render(v)
}

// Empty 按自身结构判断v是否为空值，无需求值任意表达式。
func Empty(v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []Value:
		return len(val) == 0
	case map[string]Value:
		return len(val) == 0
	case bool:
		return !val
	case float64:
		return val == 0
	default:
		return false
	}
}

// Equal 结构相等
func Equal(a, b Value) bool {
	return Render(a) == Render(b)
}
