// Package logging implements domain/service.Logger on top of
// go.uber.org/zap, directly adapted from the field-redacting SugaredLogger
// wrapper in the neurobridge example's internal/platform/logger/logger.go —
// the account credentials and session tokens flowing through auth.Coordinator
// and executor make the same token/password/secret redaction worth keeping
// here, not just a cosmetic borrow.
package logging

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Pimboto/DarkStackBackend/internal/domain/service"
)

// Logger wraps a zap.SugaredLogger behind domain/service.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger appropriate for mode ("production" or anything else
// for a human-readable development encoder), at level (one of zap's level
// names: debug/info/warn/error).
func New(mode, level string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err == nil {
		cfg.Level = lvl
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zapLogger.Sugar()}, nil
}

// Sync flushes any buffered log entries; call once at process shutdown.
func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, sanitize(args)...) }
func (l *Logger) Info(msg string, args ...any)  { l.sugar.Infow(msg, sanitize(args)...) }
func (l *Logger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, sanitize(args)...) }
func (l *Logger) Error(msg string, args ...any) { l.sugar.Errorw(msg, sanitize(args)...) }

func (l *Logger) With(args ...any) service.Logger {
	return &Logger{sugar: l.sugar.With(sanitize(args)...)}
}

var _ service.Logger = (*Logger)(nil)

// redactKeys are substrings of a key/value-pair's key that mark the value as
// sensitive — credentials and tokens are the ones this domain actually
// carries through SessionData/AccountMetadata.
var redactKeys = []string{"token", "password", "secret", "refresh", "cookie", "authorization"}

// sanitize replaces the value half of any key/value pair whose key looks
// sensitive with a fixed placeholder, leaving the key itself intact so log
// structure is still searchable.
func sanitize(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key, _ := kv[i].(string)
		out = append(out, kv[i])
		if isSensitiveKey(key) {
			out = append(out, "[REDACTED]")
		} else {
			out = append(out, kv[i+1])
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range redactKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}
