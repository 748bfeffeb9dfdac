package badgerkv

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/kasuganosora/tablecore/internal/kv"
)

// orderedMap is a kv.OrderedMap backed by a key prefix within one
// shared badger.DB, grounded on the range-scan shape of the teacher's
// IndexManager.LookupIndex/AddToIndex (pkg/resource/badger/index.go).
type orderedMap struct {
	db     *badger.DB
	prefix []byte
}

func (m *orderedMap) full(key []byte) []byte {
	out := make([]byte, 0, len(m.prefix)+len(key))
	out = append(out, m.prefix...)
	out = append(out, key...)
	return out
}

func (m *orderedMap) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(m.full(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("badgerkv: get: %w", err)
	}
	return val, val != nil, nil
}

func (m *orderedMap) Put(key, value []byte) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(m.full(key), value)
	})
	if err != nil {
		return fmt.Errorf("badgerkv: put: %w", err)
	}
	return nil
}

func (m *orderedMap) Remove(key []byte) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(m.full(key))
	})
	if err != nil {
		return fmt.Errorf("badgerkv: remove: %w", err)
	}
	return nil
}

func (m *orderedMap) Scan(first, last []byte) (kv.Iterator, error) {
	txn := m.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = m.prefix
	it := txn.NewIterator(opts)

	start := m.prefix
	if first != nil {
		start = m.full(first)
	}
	it.Seek(start)

	var upper []byte
	if last != nil {
		upper = m.full(last)
	}

	return &scanIterator{txn: txn, it: it, prefix: m.prefix, upper: upper}, nil
}

func (m *orderedMap) ApproxSize() int64 {
	var n int64
	_ = m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = m.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(m.prefix); it.ValidForPrefix(m.prefix); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (m *orderedMap) DiskUsage() int64 {
	lsm, vlog := m.db.Size()
	return lsm + vlog
}

type scanIterator struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	upper  []byte
	key    []byte
	val    []byte
	err    error
	closed bool
}

func (s *scanIterator) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if !s.it.ValidForPrefix(s.prefix) {
		return false
	}
	item := s.it.Item()
	k := item.KeyCopy(nil)
	if s.upper != nil && bytes.Compare(k, s.upper) >= 0 {
		return false
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		s.err = err
		return false
	}
	s.key = k[len(s.prefix):]
	s.val = v
	s.it.Next()
	return true
}

func (s *scanIterator) Key() []byte   { return s.key }
func (s *scanIterator) Value() []byte { return s.val }
func (s *scanIterator) Err() error    { return s.err }
func (s *scanIterator) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.it.Close()
	s.txn.Discard()
	return nil
}
