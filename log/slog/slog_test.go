package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/tierstore"
)

func TestLoggerWritesSortedAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
	l := New(stdslog.New(h))

	l.Info("recovered", tierstore.Fields{"ns": "User", "added": 3})

	line := buf.String()
	if !strings.Contains(line, "msg=recovered") || !strings.Contains(line, "component=tierstore") {
		t.Fatalf("line = %q", line)
	}
	if strings.Index(line, "added=3") > strings.Index(line, "ns=User") {
		t.Fatalf("attrs not sorted: %q", line)
	}
}

func TestLevelFiltered(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelWarn})))
	l.Debug("hidden", tierstore.Fields{"k": 1})
	if buf.Len() != 0 {
		t.Fatalf("debug line written: %q", buf.String())
	}
}
