package rulecache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
)

// DefaultSize is the number of compiled configurations kept.
const DefaultSize = 64

type entry struct {
	text  string
	rules *fingerprinting.Rules
}

// Cache keeps recently compiled rule sets keyed by their configuration text.
type Cache struct {
	cache *lru.Cache[uint64, entry]
	sync.Mutex
}

// New creates a cache holding up to size rule sets.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[uint64, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{cache: cache}, nil
}

// Get returns the compiled rules for text, compiling them on a miss.
// Compile errors are returned and not cached.
func (c *Cache) Get(text string) (*fingerprinting.Rules, error) {
	key := xxhash.Sum64String(text)

	c.Lock()
	e, ok := c.cache.Get(key)
	c.Unlock()
	if ok && e.text == text {
		return e.rules, nil
	}

	rs, err := fingerprinting.Parse(text)
	if err != nil {
		return nil, err
	}

	c.Lock()
	c.cache.Add(key, entry{text: text, rules: rs})
	c.Unlock()
	return rs, nil
}

// Len returns the number of cached rule sets.
func (c *Cache) Len() int {
	c.Lock()
	defer c.Unlock()
	return c.cache.Len()
}
