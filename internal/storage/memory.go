package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps blobs in process memory. Used by tests and by the
// "memory" driver for throwaway local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objs    map[string]memoryObject
	baseURL string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objs: make(map[string]memoryObject), baseURL: baseURL}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.objs[cleanKey] = memoryObject{data: buf, contentType: contentType}
	s.mu.Unlock()
	return s.URL(cleanKey), nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	obj, ok := s.objs[cleanKey]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("get", cleanKey)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := SanitizeKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[cleanKey]; !ok {
		return notFound("delete", cleanKey)
	}
	delete(s.objs, cleanKey)
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}

// Keys lists stored keys with the given prefix in ascending order.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objs))
	for k := range s.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
