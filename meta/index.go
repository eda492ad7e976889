package meta

import (
	"sort"

	radix "github.com/armon/go-radix"
)

// RouteRef 路由key的一个占用者
type RouteRef struct {
	Service string
	Method  string
}

// KeyIndex 按寻址字符串组织全部路由key的前缀树。
// 用于重复key探测和按命名空间（"<service-kebab>."前缀）枚举。
type KeyIndex struct {
	tree *radix.Tree
}

func BuildKeyIndex(rm RouteMap) *KeyIndex {
	idx := &KeyIndex{tree: radix.New()}
	for _, service := range rm.Services() {
		routes := rm[service]
		for _, method := range routes.Methods() {
			idx.Insert(KeyString(routes[method].Key), RouteRef{Service: service, Method: method})
		}
	}
	return idx
}

func NewKeyIndex() *KeyIndex {
	return &KeyIndex{tree: radix.New()}
}

func (idx *KeyIndex) Insert(key string, ref RouteRef) {
	var refs []RouteRef
	if v, ok := idx.tree.Get(key); ok {
		refs = v.([]RouteRef)
	}
	idx.tree.Insert(key, append(refs, ref))
}

// Lookup 返回占用key的全部方法
func (idx *KeyIndex) Lookup(key string) []RouteRef {
	v, ok := idx.tree.Get(key)
	if !ok {
		return nil
	}
	return v.([]RouteRef)
}

// Namespace 枚举prefix命名空间下的全部key
func (idx *KeyIndex) Namespace(prefix string) []string {
	var keys []string
	idx.tree.WalkPrefix(prefix, func(k string, _ any) bool {
		keys = append(keys, k)
		return false
	})
	return keys
}

// Duplicates 被多个方法占用的key，排序后返回
func (idx *KeyIndex) Duplicates() []string {
	var dups []string
	idx.tree.Walk(func(k string, v any) bool {
		if len(v.([]RouteRef)) > 1 {
			dups = append(dups, k)
		}
		return false
	})
	sort.Strings(dups)
	return dups
}
