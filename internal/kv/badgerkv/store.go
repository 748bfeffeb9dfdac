// Package badgerkv is the default concrete kv.Store backend, persisting
// every named map as a key prefix inside one shared badger.DB. It is
// grounded on the teacher's pkg/resource/badger package: the same
// prefix-per-concern layout (PrefixTable, PrefixIndex, ...) generalized
// here to one prefix per named map, and the same SequenceManager-style
// use of db.GetSequence for collision-free identifier allocation.
package badgerkv

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/kasuganosora/tablecore/internal/kv"
)

// Store is a badger-backed kv.Store. Every OpenMap/OpenHashMap name
// becomes a distinct key prefix within the same badger.DB, mirroring
// how the teacher's IndexManager namespaces index entries under
// "idx:<table>:<column>" inside one database.
type Store struct {
	db *badger.DB

	mu       sync.Mutex
	hashMaps map[string]*memoryHashMap
	seq      *badger.Sequence
}

// Open opens (or creates) a badger database at dir. Pass "" for dir to
// run fully in-memory (badger.DefaultOptions("").WithInMemory(true)).
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open: %w", err)
	}
	seq, err := db.GetSequence([]byte("tablecore:tempmap-seq"), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badgerkv: sequence: %w", err)
	}
	return &Store{db: db, hashMaps: make(map[string]*memoryHashMap), seq: seq}, nil
}

// Close releases the sequence and the underlying badger database.
func (s *Store) Close() error {
	s.seq.Release()
	return s.db.Close()
}

func (s *Store) OpenMap(name string) (kv.OrderedMap, error) {
	return &orderedMap{db: s.db, prefix: mapPrefix(name)}, nil
}

func (s *Store) OpenHashMap(name string) (kv.HashMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hm, ok := s.hashMaps[name]; ok {
		return hm, nil
	}
	hm := newMemoryHashMap()
	s.hashMaps[name] = hm
	return hm, nil
}

func (s *Store) NextTemporaryMapName() string {
	n, err := s.seq.Next()
	if err != nil {
		// Sequence exhaustion/IO failure is exceedingly rare; fall back
		// to a UUID so the builder always gets a collision-free name.
		return "tmp." + uuid.NewString()
	}
	return fmt.Sprintf("tmp.%d.%s", n, uuid.NewString())
}

func (s *Store) HasMap(name string) bool {
	prefix := mapPrefix(name)
	found := false
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	if found {
		return true
	}
	s.mu.Lock()
	_, ok := s.hashMaps[name]
	s.mu.Unlock()
	return ok
}

func (s *Store) RemoveMap(name string) error {
	prefix := mapPrefix(name)
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, k)
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerkv: remove map %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.hashMaps, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) IsMemoryBacked() bool { return false }

func mapPrefix(name string) []byte {
	return []byte("map:" + name + ":")
}
