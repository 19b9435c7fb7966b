package logger

type LevelWrapper struct {
	Base
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{l}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	return WrapLogger(&boundBase{Base: w.Base, kv: kv})
}

// boundBase prepends a fixed set of key/value pairs to every Log call. It
// forwards Unwrap so that a Logger built through With(...) can still be
// traced back to a concrete backend (e.g. zaplogger.ZapLogger) by callers
// that need the native client for a third-party logging bridge.
type boundBase struct {
	Base
	kv []any
}

func (b *boundBase) Log(level LogLevel, msg string, kv ...any) {
	b.Base.Log(level, msg, append(append([]any{}, b.kv...), kv...)...)
}

func (b *boundBase) Unwrap() Base {
	return b.Base
}
