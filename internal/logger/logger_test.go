package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"account_id", 7, "access_token", "ya29.secret", "Password", "hunter2"})
	assert.Equal(t, []interface{}{"account_id", 7, "access_token", "[REDACTED]", "Password", "[REDACTED]"}, out)
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"source", "gmb", "dangling"})
	assert.Equal(t, []interface{}{"source", "gmb", "dangling"}, out)
}
