package mlog

import "testing"

func TestNilLoggerIsSafe(t *testing.T) {
	SetLogger(nil)
	Info("no logger installed")
	Warnf("still %s", "fine")
}

func TestLevelGate(t *testing.T) {
	l := newStdoutLogger(WarnLevel)
	if !l.IsLevelEnabled(ErrorLevel) || !l.IsLevelEnabled(WarnLevel) {
		t.Fatal("levels at or below the gate must be enabled")
	}
	if l.IsLevelEnabled(InfoLevel) || l.IsLevelEnabled(DebugLevel) {
		t.Fatal("levels above the gate must be disabled")
	}
}

func TestLevelTags(t *testing.T) {
	if getLevelTag(InfoLevel) != "[info] " || getLevelTag(ErrorLevel) != "[error] " {
		t.Fatal("tags")
	}
	if getLevelTag(Level(99)) != "" {
		t.Fatal("unknown level")
	}
}
