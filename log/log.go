// Package log provides the module-scoped structured logger used throughout
// refractor-sub001. Call sites obtain a logger with NewModuleLogger(name) and
// log through the Logger interface; the concrete implementation is backed by
// go.uber.org/zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Lvl mirrors the severity levels the module loggers can be raised or lowered
// to at runtime via ChangeGlobalLogLevel.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) zapLevel() zapcore.Level {
	switch l {
	case LvlCrit:
		return zapcore.DPanicLevel
	case LvlError:
		return zapcore.ErrorLevel
	case LvlWarn:
		return zapcore.WarnLevel
	case LvlDebug, LvlTrace:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the call-site logging contract. Every method accepts a message
// followed by alternating key/value pairs, the same convention as klaytn's
// module logger.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	// Crit logs at the highest severity. Callers that can't recover from the
	// condition should follow it with os.Exit; Crit itself never exits.
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

type zapLogger struct {
	name string
	sugar *zap.SugaredLogger
}

func (z *zapLogger) Trace(msg string, ctx ...interface{}) { z.sugar.Debugw(msg, ctx...) }
func (z *zapLogger) Debug(msg string, ctx ...interface{}) { z.sugar.Debugw(msg, ctx...) }
func (z *zapLogger) Info(msg string, ctx ...interface{})  { z.sugar.Infow(msg, ctx...) }
func (z *zapLogger) Warn(msg string, ctx ...interface{})  { z.sugar.Warnw(msg, ctx...) }
func (z *zapLogger) Error(msg string, ctx ...interface{}) { z.sugar.Errorw(msg, ctx...) }
func (z *zapLogger) Crit(msg string, ctx ...interface{})  { z.sugar.DPanicw(msg, ctx...) }

func (z *zapLogger) With(ctx ...interface{}) Logger {
	return &zapLogger{name: z.name, sugar: z.sugar.With(ctx...)}
}

var (
	mu        sync.Mutex
	base      *zap.Logger
	atomLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	modules   = map[string]*zap.AtomicLevel{}
)

func init() {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(newStderrSink()), atomLevel)
	base = zap.New(core)
}

// NewModuleLogger returns a Logger scoped to the given module name. Every
// package that logs declares one package-level logger this way:
//
//	var logger = log.NewModuleLogger("storage")
func NewModuleLogger(name string) Logger {
	mu.Lock()
	if _, ok := modules[name]; !ok {
		lvl := zap.NewAtomicLevelAt(atomLevel.Level())
		modules[name] = &lvl
	}
	mu.Unlock()
	return &zapLogger{name: name, sugar: base.Sugar().With("module", name)}
}

// ChangeGlobalLogLevel raises or lowers the verbosity ceiling shared by
// every module logger.
func ChangeGlobalLogLevel(lvl Lvl) {
	mu.Lock()
	defer mu.Unlock()
	atomLevel.SetLevel(lvl.zapLevel())
}

// ChangeLogLevelWithName records a level for a single named module, or
// returns ErrUnknownModule for a name never passed to NewModuleLogger. The
// recorded level is not consulted when logging: every module logger filters
// on the global level set by ChangeGlobalLogLevel.
func ChangeLogLevelWithName(name string, lvl Lvl) error {
	mu.Lock()
	defer mu.Unlock()
	al, ok := modules[name]
	if !ok {
		return ErrUnknownModule
	}
	al.SetLevel(lvl.zapLevel())
	return nil
}
