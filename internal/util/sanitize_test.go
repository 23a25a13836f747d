package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "alice", SanitizeInput("  alice  "))
	assert.Equal(t, "a&amp;b", SanitizeInput("a&b"))
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("<script>alert(1)</script>"))
	assert.True(t, ContainsSuspicious("${jndi:ldap://x}"))
	assert.False(t, ContainsSuspicious("alice-42_x"))
}

func TestHashEmailIsCaseSensitive(t *testing.T) {
	assert.NotEqual(t, HashEmail("a@x.com"), HashEmail("A@X.COM"))
	assert.Len(t, HashEmail("a@x.com"), 64)
}
