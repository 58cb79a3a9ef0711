package fetch

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores fetched pages by URL. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(url string) (Page, bool)
	Put(url string, page Page)
}

// MemoryCache is a bounded in-process LRU page cache.
type MemoryCache struct {
	lru *lru.Cache[string, Page]
}

// NewMemoryCache creates an LRU cache holding at most size pages.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, Page](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (m *MemoryCache) Get(url string) (Page, bool) {
	return m.lru.Get(url)
}

func (m *MemoryCache) Put(url string, page Page) {
	m.lru.Add(url, page)
}

// Len returns the number of cached pages.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

type noCache struct{}

func (noCache) Get(string) (Page, bool) { return Page{}, false }
func (noCache) Put(string, Page)        {}
