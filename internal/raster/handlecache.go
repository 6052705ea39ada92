package raster

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"
)

// HandleCache is a bounded, thread-safe LRU cache of open raster handles,
// keyed by file path. Concurrent requests for the same not-yet-cached path
// are deduplicated with singleflight so two goroutines never open (and
// mmap) the same file at once. Evicting an entry closes its handle.
type HandleCache struct {
	maxSize int

	mu    sync.Mutex
	cache map[string]*list.Element
	lru   *list.List

	group singleflight.Group
}

type handleEntry struct {
	path   string
	reader Reader
	valid  bool // false records a known-bad path, to avoid re-probing it
}

// NewHandleCache creates a handle cache holding at most maxSize open
// readers at once.
func NewHandleCache(maxSize int) *HandleCache {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &HandleCache{
		maxSize: maxSize,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get returns a cached reader for path, opening and caching it via open if
// it isn't already cached. A negative result (open failed) is cached too,
// so a missing tile isn't re-stat'd on every lookup of the same path.
func (c *HandleCache) Get(path string, open func(string) (Reader, error)) (Reader, error) {
	if reader, valid, found := c.lookup(path); found {
		if !valid {
			return nil, &ErrOutOfRange{Path: path}
		}
		return reader, nil
	}

	result, err, _ := c.group.Do(path, func() (interface{}, error) {
		if reader, valid, found := c.lookup(path); found {
			if !valid {
				return nil, &ErrOutOfRange{Path: path}
			}
			return reader, nil
		}

		reader, err := open(path)
		if err != nil {
			c.put(path, nil, false)
			return nil, err
		}
		c.put(path, reader, true)
		return reader, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(Reader), nil
}

func (c *HandleCache) lookup(path string) (Reader, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[path]
	if !ok {
		return nil, false, false
	}
	c.lru.MoveToFront(elem)
	entry := elem.Value.(*handleEntry)
	return entry.reader, entry.valid, true
}

func (c *HandleCache) put(path string, reader Reader, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[path]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*handleEntry)
		if entry.reader != nil {
			entry.reader.Close()
		}
		entry.reader = reader
		entry.valid = valid
		return
	}

	for c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*handleEntry)
		if entry.reader != nil {
			entry.reader.Close()
		}
		delete(c.cache, entry.path)
		c.lru.Remove(oldest)
	}

	entry := &handleEntry{path: path, reader: reader, valid: valid}
	c.cache[path] = c.lru.PushFront(entry)
}

// Len returns the number of entries currently cached (including negative
// results).
func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close evicts and closes every cached reader.
func (c *HandleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for e := c.lru.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*handleEntry)
		if entry.reader != nil {
			if err := entry.reader.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	c.cache = make(map[string]*list.Element)
	c.lru = list.New()
	return firstErr
}
