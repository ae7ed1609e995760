// Package zap adapts a zap logger to cachemaster.Logger.
package zap

import (
	"github.com/goforj/cachemaster"
	"go.uber.org/zap"
)

var _ cachemaster.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f cachemaster.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f cachemaster.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f cachemaster.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f cachemaster.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f cachemaster.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
