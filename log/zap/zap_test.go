package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tierstore"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("eviction delete failed", tierstore.Fields{"key": ":/User/1", "err": errors.New("disk")})
	l.Debug("fill skipped", nil)

	if logs.Len() != 2 {
		t.Fatalf("entries = %d", logs.Len())
	}
	e := logs.All()[0]
	if e.LoggerName != "tierstore" || e.Level != zapcore.WarnLevel {
		t.Fatalf("entry = %+v", e.Entry)
	}
	ctx := e.ContextMap()
	if ctx["key"] != ":/User/1" || ctx["err"] != "disk" {
		t.Fatalf("fields = %v", ctx)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	New(nil).Error("nothing", tierstore.Fields{"a": 1})
}
