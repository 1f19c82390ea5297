package capability

import "go.uber.org/zap"

// ZapLogger adapts a *zap.Logger to the Logger capability, so
// components depend only on the capability interface while
// production wiring still gets structured zap output.
type ZapLogger struct {
	L *zap.Logger
}

func (z ZapLogger) Trace(msg string, kv ...any) { z.L.Sugar().Debugw(msg, kv...) }
func (z ZapLogger) Debug(msg string, kv ...any) { z.L.Sugar().Debugw(msg, kv...) }
func (z ZapLogger) Info(msg string, kv ...any)  { z.L.Sugar().Infow(msg, kv...) }
func (z ZapLogger) Warn(msg string, kv ...any)  { z.L.Sugar().Warnw(msg, kv...) }
func (z ZapLogger) Error(msg string, kv ...any) { z.L.Sugar().Errorw(msg, kv...) }

// NoopLogger discards everything; used as a safe zero value in tests.
type NoopLogger struct{}

func (NoopLogger) Trace(string, ...any) {}
func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
