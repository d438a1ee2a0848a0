// Package logx wraps zerolog behind a small structured-logging API.
//
// It exposes a value-type Logger with functional field helpers and a Service
// that owns the sink configuration. The Service keeps the root logger in an
// atomic value so Apply() can swap levels and outputs at runtime without
// invalidating loggers already handed out.
package logx
