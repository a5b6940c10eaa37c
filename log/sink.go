package log

import (
	"errors"
	"os"

	"go.uber.org/zap/zapcore"
)

// ErrUnknownModule is returned by ChangeLogLevelWithName for a module that
// has never called NewModuleLogger.
var ErrUnknownModule = errors.New("log: unknown module")

func newStderrSink() zapcore.WriteSyncer {
	return zapcore.AddSync(os.Stderr)
}
