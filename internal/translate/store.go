package translate

import (
	"context"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one translation by exact string equality of its parts.
type Key struct {
	Text   string
	Source string
	Target string
}

// String encodes k unambiguously: the language codes carry their lengths,
// so no choice of separator inside them can collide with another key.
func (k Key) String() string {
	return strconv.Itoa(len(k.Source)) + ":" + k.Source + "|" +
		strconv.Itoa(len(k.Target)) + ":" + k.Target + "|" + k.Text
}

// store is the in-process level of the cache.
type store interface {
	Get(k Key) (string, bool)
	Set(k Key, v string)
	Clear()
	Len() int
}

// SecondLevel is an optional shared store consulted after an in-process miss.
type SecondLevel interface {
	Get(ctx context.Context, k Key) (string, bool, error)
	Set(ctx context.Context, k Key, v string) error
	Clear(ctx context.Context) error
}

type mapStore struct {
	mu sync.RWMutex
	m  map[Key]string
}

func newMapStore() *mapStore {
	return &mapStore{m: make(map[Key]string)}
}

func (s *mapStore) Get(k Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	return v, ok
}

func (s *mapStore) Set(k Key, v string) {
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

func (s *mapStore) Clear() {
	s.mu.Lock()
	s.m = make(map[Key]string)
	s.mu.Unlock()
}

func (s *mapStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// lruStore bounds the entry count, evicting the least recently used.
type lruStore struct {
	c *lru.Cache[Key, string]
}

func newLRUStore(size int) (*lruStore, error) {
	c, err := lru.New[Key, string](size)
	if err != nil {
		return nil, err
	}
	return &lruStore{c: c}, nil
}

func (s *lruStore) Get(k Key) (string, bool) { return s.c.Get(k) }
func (s *lruStore) Set(k Key, v string)      { s.c.Add(k, v) }
func (s *lruStore) Clear()                   { s.c.Purge() }
func (s *lruStore) Len() int                 { return s.c.Len() }
