package scan

import (
	"testing"

	"github.com/fixkme/rpckit/meta"
	"github.com/stretchr/testify/require"
)

func TestValidateDuplicateService(t *testing.T) {
	mods := []meta.ServiceModule{
		{Name: "users", Dir: "/a/services/users"},
		{Name: "users", Dir: "/b/services/users"},
	}
	diags := &Diagnostics{}
	Validate(mods, nil, diags)
	require.True(t, diags.Failed())
	require.Contains(t, diags.Items()[0].Msg, "duplicate service name")
}

func TestValidateDuplicateMethod(t *testing.T) {
	records := []meta.HandlerRecord{
		{Service: "users", Method: "getUser", HandlerName: "GetUser", Kind: meta.KindRequest, Pos: "a.go:10:1"},
		{Service: "users", Method: "getUser", HandlerName: "FetchUser", Kind: meta.KindRequest, Pos: "b.go:20:1"},
	}
	diags := &Diagnostics{}
	Validate(nil, records, diags)
	require.True(t, diags.Failed())
	// 诊断同时指认两个来源
	msg := diags.Items()[0].Msg
	require.Contains(t, msg, "GetUser")
	require.Contains(t, msg, "a.go:10:1")
	require.Contains(t, msg, "FetchUser")
	require.Contains(t, msg, "b.go:20:1")
}

func TestValidateEventGroupIsLegal(t *testing.T) {
	records := []meta.HandlerRecord{
		{Service: "users", Method: "emitCreated", HandlerName: "OnCreated", Kind: meta.KindEvent},
		{Service: "users", Method: "emitCreated", HandlerName: "AuditCreated", Kind: meta.KindEvent},
	}
	diags := &Diagnostics{}
	Validate(nil, records, diags)
	require.False(t, diags.Failed(), "event handlers sharing an event name are a group, not a clash")
}

func TestValidateSameMethodDifferentServices(t *testing.T) {
	records := []meta.HandlerRecord{
		{Service: "users", Method: "list", HandlerName: "List", Kind: meta.KindRequest},
		{Service: "orders", Method: "list", HandlerName: "List", Kind: meta.KindRequest},
	}
	diags := &Diagnostics{}
	Validate(nil, records, diags)
	require.False(t, diags.Failed())
}

func TestAssignOwnerAliases(t *testing.T) {
	records := []meta.HandlerRecord{
		{Service: "users", Owner: "Handlers", Method: "a", File: "a.go", Kind: meta.KindRequest},
		{Service: "users", Owner: "Handlers", Method: "b", File: "b.go", Kind: meta.KindRequest},
		{Service: "orders", Owner: "Handlers", Method: "c", File: "c.go", Kind: meta.KindRequest},
	}
	diags := &Diagnostics{}
	Validate(nil, records, diags)
	require.False(t, diags.Failed())
	require.Equal(t, "UsersHandlers", records[0].OwnerAlias)
	require.Equal(t, "UsersHandlers", records[1].OwnerAlias)
	require.Empty(t, records[2].OwnerAlias, "single-file owners keep their own name")
}
