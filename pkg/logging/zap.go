// Package logging provides the production Logger implementation every
// other package's small Logger interface is structurally satisfied by:
// Debug/Info/Warn/Error(msg string, args ...interface{}).
package logging

import "go.uber.org/zap"

// ZapLogger wraps a zap.SugaredLogger behind the orchestrator-shaped
// Logger interface. It never logs raw audio payloads; callers pass
// transcript lengths, provider names, and status transitions instead.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production-configured zap logger. Pass true for
// development to get human-readable, colorized output instead of JSON.
func NewZapLogger(development bool) (*ZapLogger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes any buffered log entries; call before process exit.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
