package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
	assert.NotEqual(t, "password123", hash)

	assert.True(t, CheckPassword(hash, "password123"))
	assert.False(t, CheckPassword(hash, "wrongpass"))
	assert.False(t, CheckPassword("not-a-hash", "password123"))
}

func TestSanitizeStripsScripts(t *testing.T) {
	assert.Equal(t, "hello", Sanitize(`hello<script>alert(1)</script>`))
	assert.Contains(t, Sanitize(`<b>bold</b>`), "<b>")
}
