// Package zap adapts a *zap.Logger to tierstore.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tierstore"
)

var _ tierstore.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "tierstore". A nil l logs nowhere.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("tierstore")}
}

func (z Logger) Debug(msg string, f tierstore.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f tierstore.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f tierstore.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f tierstore.Fields) { z.L.Error(msg, fields(f)...) }

func fields(f tierstore.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
