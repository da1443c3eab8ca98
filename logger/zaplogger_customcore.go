package logger

import (
	"go.uber.org/zap/zapcore"
)

// customCore moves the request correlation fields to the end of every entry so the
// event-specific fields read first in console output.
type customCore struct {
	zapcore.Core
}

// trailingFieldKeys are written after all other fields, in this order.
var trailingFieldKeys = []string{"request_id", "application"}

// With adds structured context to the Core.
func (c *customCore) With(fields []zapcore.Field) zapcore.Core {
	return &customCore{c.Core.With(fields)}
}

// Check determines whether the supplied Entry should be logged.
func (c *customCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, c)
	}
	return checkedEntry
}

// Write serializes the Entry and any Fields supplied at the log site and writes them to their destination.
func (c *customCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, reorderFields(fields))
}

// Sync flushes buffered logs (if any).
func (c *customCore) Sync() error {
	return c.Core.Sync()
}

func reorderFields(fields []zapcore.Field) []zapcore.Field {
	trailing := make(map[string]zapcore.Field, len(trailingFieldKeys))
	reordered := make([]zapcore.Field, 0, len(fields))
	for _, field := range fields {
		if isTrailingKey(field.Key) {
			trailing[field.Key] = field
			continue
		}
		reordered = append(reordered, field)
	}
	for _, key := range trailingFieldKeys {
		if field, ok := trailing[key]; ok {
			reordered = append(reordered, field)
		}
	}
	return reordered
}

func isTrailingKey(key string) bool {
	for _, k := range trailingFieldKeys {
		if k == key {
			return true
		}
	}
	return false
}
