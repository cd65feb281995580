package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a run-scoped logger writing to both the console and a log file
// inside the run's log directory. The log directory is created (and wiped of a
// previous log of the same name) so every run starts with a fresh log.
func New(logDir, project string, verbose bool) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", logDir, err)
	}

	logPath := filepath.Join(logDir, project+".log")
	_ = os.Remove(logPath)
	f, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file %s: %w", logPath, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(f),
		zap.InfoLevel,
	)

	cores := []zapcore.Core{fileCore}
	if verbose {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stderr),
			zap.InfoLevel,
		))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar().Named(project), nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
