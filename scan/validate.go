package scan

import (
	"fmt"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/str"
)

// Validate 三项独立的唯一性检查。
// 服务名、方法名冲突产生诊断；同服务内跨文件的同名struct不算错，
// 这里直接给受影响的记录填上 <ServiceName><ClassName> 别名，
// 保证生成期的import和接口引用一致。
func Validate(mods []meta.ServiceModule, records []meta.HandlerRecord, diags *Diagnostics) {
	validateServiceNames(mods, diags)
	validateMethodNames(records, diags)
	assignOwnerAliases(records)
}

func validateServiceNames(mods []meta.ServiceModule, diags *Diagnostics) {
	seen := make(map[string]string, len(mods))
	for _, mod := range mods {
		if prev, ok := seen[mod.Name]; ok {
			diags.Add(fmt.Sprintf("duplicate service name %q: %s and %s", mod.Name, prev, mod.Dir))
			continue
		}
		seen[mod.Name] = mod.Dir
	}
}

func validateMethodNames(records []meta.HandlerRecord, diags *Diagnostics) {
	type slot struct {
		pos     string
		handler string
		kind    meta.HandlerKind
	}
	seen := make(map[string]map[string]slot)
	for _, rec := range records {
		methods, ok := seen[rec.Service]
		if !ok {
			methods = make(map[string]slot)
			seen[rec.Service] = methods
		}
		if prev, ok := methods[rec.Method]; ok {
			// 多个事件handler共享同一个事件名是合法的分组，不算冲突
			if prev.kind == meta.KindEvent && rec.Kind == meta.KindEvent {
				continue
			}
			diags.Add(fmt.Sprintf("service %s: duplicate client method %q: %s (%s) and %s (%s)",
				rec.Service, rec.Method, prev.handler, prev.pos, rec.HandlerName, rec.Pos))
			continue
		}
		methods[rec.Method] = slot{pos: rec.Pos, handler: rec.HandlerName, kind: rec.Kind}
	}
}

// assignOwnerAliases 同一个服务里同名struct出现在两个文件时自动消歧
func assignOwnerAliases(records []meta.HandlerRecord) {
	files := make(map[string]map[string]map[string]struct{}) // service => owner => set[file]
	for _, rec := range records {
		owners, ok := files[rec.Service]
		if !ok {
			owners = make(map[string]map[string]struct{})
			files[rec.Service] = owners
		}
		set, ok := owners[rec.Owner]
		if !ok {
			set = make(map[string]struct{})
			owners[rec.Owner] = set
		}
		set[rec.File] = struct{}{}
	}
	for i := range records {
		rec := &records[i]
		if len(files[rec.Service][rec.Owner]) > 1 {
			rec.OwnerAlias = str.CamelCase(rec.Service) + rec.Owner
		}
	}
}
