package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserBucketStable(t *testing.T) {
	m := NewManager(64)
	first := m.UserBucket("a@x.com")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, m.UserBucket("a@x.com"))
	}
}

func TestUserBucketRange(t *testing.T) {
	m := NewManager(16)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		b := m.UserBucket(fmt.Sprintf("user%d@example.com", i))
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		seen[b] = true
	}
	// a thousand keys should land in most of 16 buckets
	assert.Greater(t, len(seen), 12)
}

func TestDefaultBucketCount(t *testing.T) {
	m := NewManager(0)
	assert.Equal(t, 64, m.UserBuckets())
}
