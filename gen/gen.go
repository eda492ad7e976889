// Package gen turns validated handler records into the two build-time
// artifacts: one typed client interface source per service, and the single
// global route map (Go source plus routes.json) that is the only contract
// the runtime loads.
package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fixkme/rpckit/meta"
	"github.com/fixkme/rpckit/mlog"
	"github.com/fixkme/rpckit/str"
)

type Options struct {
	OutDir     string
	OutPkg     string // 生成代码的包名，默认rpcclient
	ImportBase string // 服务包import路径前缀，如 example.com/app/services
}

type Generator struct {
	opt Options
}

func New(opt Options) *Generator {
	if opt.OutPkg == "" {
		opt.OutPkg = "rpcclient"
	}
	return &Generator{opt: opt}
}

// BuildRouteMap 由记录构建路由表。事件组里的多条记录折叠成一个客户端方法。
func BuildRouteMap(records []meta.HandlerRecord) meta.RouteMap {
	rm := meta.RouteMap{}
	for _, rec := range records {
		routes, ok := rm[rec.Service]
		if !ok {
			routes = meta.ServiceRoutes{}
			rm[rec.Service] = routes
		}
		if _, exists := routes[rec.Method]; exists {
			continue
		}
		routes[rec.Method] = meta.Route{Key: rec.Key, HasPayload: rec.HasPayload()}
	}
	return rm
}

// Run 产出全部生成物。重复的路由key只告警，不阻断生成。
func (g *Generator) Run(records []meta.HandlerRecord) (meta.RouteMap, error) {
	rm := BuildRouteMap(records)
	for _, key := range meta.BuildKeyIndex(rm).Duplicates() {
		mlog.Warnf("routing key %q is claimed by more than one client method", key)
	}

	if err := os.MkdirAll(g.opt.OutDir, 0755); err != nil {
		return nil, err
	}

	perService := make(map[string][]meta.HandlerRecord)
	for _, rec := range records {
		perService[rec.Service] = append(perService[rec.Service], rec)
	}
	for _, service := range rm.Services() {
		src, err := g.interfaceSource(service, perService[service])
		if err != nil {
			return nil, fmt.Errorf("generate %s client: %w", service, err)
		}
		name := strings.ReplaceAll(str.KebabCase(service), "-", "_") + "_client.gen.go"
		if err := os.WriteFile(filepath.Join(g.opt.OutDir, name), src, 0644); err != nil {
			return nil, err
		}
	}

	src, err := g.routeMapSource(rm)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(g.opt.OutDir, "routes.gen.go"), src, 0644); err != nil {
		return nil, err
	}
	if err := rm.SaveFile(filepath.Join(g.opt.OutDir, "routes.json")); err != nil {
		return nil, err
	}
	mlog.Infof("generated %d service clients into %s", len(rm), g.opt.OutDir)
	return rm, nil
}
