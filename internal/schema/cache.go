package schema

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of compiled models kept per process.
const DefaultCacheSize = 64

// Cache memoizes compiled models by model name. Concurrent misses for the
// same name may compile twice; the result is the same either way.
type Cache struct {
	models *lru.Cache[string, *Model]
}

// NewCache creates a cache holding at most size models.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Model](size)
	if err != nil {
		return nil, err
	}
	return &Cache{models: c}, nil
}

// Get returns the cached model for name, compiling it on a miss. Failed
// compilations are not cached.
func (c *Cache) Get(name string, compile func() (*Model, error)) (*Model, error) {
	if m, ok := c.models.Get(name); ok {
		return m, nil
	}
	m, err := compile()
	if err != nil {
		return nil, err
	}
	c.models.Add(name, m)
	return m, nil
}

// CompileRaw is Get with Compile over a raw schema document.
func (c *Cache) CompileRaw(name string, raw []byte) (*Model, error) {
	return c.Get(name, func() (*Model, error) { return Compile(name, raw) })
}

// Len reports the number of cached models.
func (c *Cache) Len() int { return c.models.Len() }
