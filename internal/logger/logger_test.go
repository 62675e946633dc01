package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"owner_id", "u1", "api_key", "k-123", "jwt_token", "abc", "dangling"})
	assert.Equal(t, []interface{}{"owner_id", "u1", "api_key", "[REDACTED]", "jwt_token", "[REDACTED]", "dangling"}, out)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("hello", "k", "v")
		l.With("a", 1).Debug("nested")
		l.Sync()
	})
}
