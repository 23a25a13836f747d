package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager assigns users to stable partitions. The credential table is
// partitioned by (bucket, email_hash) so hot partitions stay bounded as the
// user base grows.
type Manager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewManager(userBuckets int) *Manager {
	if userBuckets <= 0 {
		userBuckets = 64
	}
	m := &Manager{userBuckets: userBuckets}
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// UserBucket maps a key (email hash) to a bucket in [0, userBuckets).
// The mapping is stable across restarts.
func (m *Manager) UserBucket(key string) int {
	return int(m.hash(key) % uint64(m.userBuckets))
}

// UserBuckets reports the configured bucket count.
func (m *Manager) UserBuckets() int {
	return m.userBuckets
}

func (m *Manager) hash(key string) uint64 {
	h := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(h)
	h.Reset()
	h.Write([]byte(key))
	return h.Sum64()
}
