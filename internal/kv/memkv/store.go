// Package memkv is a pure in-memory kv.Store: a slice-backed OrderedMap
// per name plus the same in-memory HashMap the persistent backends use.
// It backs memory-only tables and is also the target map for the
// in-memory rebuild path the buffered index builder uses for secondary
// indexes (spec.md §9, Open Question #3).
package memkv

import (
	"sort"
	"sync"

	"github.com/kasuganosora/tablecore/internal/kv"
)

type Store struct {
	mu       sync.Mutex
	ordered  map[string]*orderedMap
	hash     map[string]*hashMap
	tempSeq  int64
}

func New() *Store {
	return &Store{
		ordered: make(map[string]*orderedMap),
		hash:    make(map[string]*hashMap),
	}
}

func (s *Store) OpenMap(name string) (kv.OrderedMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.ordered[name]; ok {
		return m, nil
	}
	m := newOrderedMap()
	s.ordered[name] = m
	return m, nil
}

func (s *Store) OpenHashMap(name string) (kv.HashMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hash[name]; ok {
		return h, nil
	}
	h := newHashMap()
	s.hash[name] = h
	return h, nil
}

func (s *Store) NextTemporaryMapName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempSeq++
	return sprintTempName(s.tempSeq)
}

func sprintTempName(n int64) string {
	const digits = "0123456789"
	if n == 0 {
		return "tmp.mem.0"
	}
	buf := make([]byte, 0, 20)
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "tmp.mem." + string(buf)
}

func (s *Store) HasMap(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ordered[name]; ok {
		return true
	}
	_, ok := s.hash[name]
	return ok
}

func (s *Store) RemoveMap(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ordered, name)
	delete(s.hash, name)
	return nil
}

func (s *Store) IsMemoryBacked() bool { return true }

// orderedMap keeps entries in a sorted slice; Put/Remove are O(n) via
// sort.Search, adequate for the in-memory/test-fixture role this store
// plays (real persistent workloads use badgerkv/sqlitekv instead).
type orderedMap struct {
	mu      sync.RWMutex
	keys    [][]byte
	vals    [][]byte
}

func newOrderedMap() *orderedMap { return &orderedMap{} }

func (m *orderedMap) find(key []byte) (int, bool) {
	i := sort.Search(len(m.keys), func(i int) bool {
		return compareBytes(m.keys[i], key) >= 0
	})
	if i < len(m.keys) && compareBytes(m.keys[i], key) == 0 {
		return i, true
	}
	return i, false
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func (m *orderedMap) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.find(key); ok {
		return m.vals[i], true, nil
	}
	return nil, false, nil
}

func (m *orderedMap) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.find(key); ok {
		m.vals[i] = value
		return nil
	} else {
		m.keys = append(m.keys, nil)
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = append([]byte(nil), key...)
		m.vals = append(m.vals, nil)
		copy(m.vals[i+1:], m.vals[i:])
		m.vals[i] = value
	}
	return nil
}

func (m *orderedMap) Remove(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.find(key); ok {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
		m.vals = append(m.vals[:i], m.vals[i+1:]...)
	}
	return nil
}

func (m *orderedMap) Scan(first, last []byte) (kv.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if first != nil {
		start, _ = m.find(first)
	}
	end := len(m.keys)
	if last != nil {
		end, _ = m.find(last)
	}
	if end < start {
		end = start
	}
	keys := make([][]byte, end-start)
	vals := make([][]byte, end-start)
	copy(keys, m.keys[start:end])
	copy(vals, m.vals[start:end])
	return &sliceIterator{keys: keys, vals: vals, idx: -1}, nil
}

func (m *orderedMap) ApproxSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.keys))
}

func (m *orderedMap) DiskUsage() int64 { return 0 }

type sliceIterator struct {
	keys, vals [][]byte
	idx        int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}
func (it *sliceIterator) Key() []byte   { return it.keys[it.idx] }
func (it *sliceIterator) Value() []byte { return it.vals[it.idx] }
func (it *sliceIterator) Err() error    { return nil }
func (it *sliceIterator) Close() error  { return nil }

type hashMap struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newHashMap() *hashMap { return &hashMap{data: make(map[string][]byte)} }

func (h *hashMap) Get(key []byte) ([]byte, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.data[string(key)]
	return v, ok, nil
}

func (h *hashMap) Put(key, value []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[string(key)] = value
	return nil
}

func (h *hashMap) Remove(key []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.data, string(key))
	return nil
}

func (h *hashMap) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.data)
}

func (h *hashMap) Range(fn func(key, value []byte) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.data {
		if !fn([]byte(k), v) {
			return
		}
	}
}
