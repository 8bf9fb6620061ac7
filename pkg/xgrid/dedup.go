package xgrid

// DedupCache remembers the most recently seen packet identities.
// It's a ring: once full, the oldest identity is overwritten.
type DedupCache struct {
	ids   []PacketID
	next  int
	count int
}

// DefaultDedupSize is the default capacity of a DedupCache.
const DefaultDedupSize = 16

// NewDedupCache creates a cache holding size identities.
func NewDedupCache(size int) *DedupCache {
	if size <= 0 {
		size = DefaultDedupSize
	}
	return &DedupCache{ids: make([]PacketID, size)}
}

// IsKnown checks if the identity is remembered.
func (c *DedupCache) IsKnown(id PacketID) bool {
	for i := 0; i < c.count; i++ {
		if c.ids[i] == id {
			return true
		}
	}
	return false
}

// Record remembers an identity unconditionally.
func (c *DedupCache) Record(id PacketID) {
	c.ids[c.next] = id
	if c.next++; c.next >= len(c.ids) {
		c.next = 0
	}
	if c.count < len(c.ids) {
		c.count++
	}
}

// CheckAndRecord records the identity and returns true if it's new.
func (c *DedupCache) CheckAndRecord(id PacketID) bool {
	if c.IsKnown(id) {
		return false
	}
	c.Record(id)
	return true
}

// Flush forgets everything.
func (c *DedupCache) Flush() {
	c.next, c.count = 0, 0
}

// Len is the number of identities remembered.
func (c *DedupCache) Len() int {
	return c.count
}
