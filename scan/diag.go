package scan

import (
	"fmt"
	"go/token"
	"io"
)

// Diagnostic 一条带源码位置的违规信息
type Diagnostic struct {
	Pos string // file:line:column
	Msg string
}

func (d Diagnostic) String() string {
	if d.Pos == "" {
		return d.Msg
	}
	return d.Pos + ": " + d.Msg
}

// Diagnostics 整个扫描过程的违规收集器。
// 扫描遇到单条违规后继续，最终由调用方统一检查，任何一条都使本次运行失败。
type Diagnostics struct {
	items []Diagnostic
}

func (ds *Diagnostics) Addf(pos token.Position, format string, args ...any) {
	ds.items = append(ds.items, Diagnostic{
		Pos: fmt.Sprintf("%s:%d:%d", pos.Filename, pos.Line, pos.Column),
		Msg: fmt.Sprintf(format, args...),
	})
}

func (ds *Diagnostics) Add(msg string) {
	ds.items = append(ds.items, Diagnostic{Msg: msg})
}

// Failed 是否有任何违规
func (ds *Diagnostics) Failed() bool {
	return len(ds.items) > 0
}

func (ds *Diagnostics) Items() []Diagnostic {
	return ds.items
}

func (ds *Diagnostics) Dump(w io.Writer) {
	for _, d := range ds.items {
		fmt.Fprintln(w, d.String())
	}
}
