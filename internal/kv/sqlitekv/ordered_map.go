package sqlitekv

import (
	"database/sql"
	"fmt"

	"github.com/kasuganosora/tablecore/internal/kv"
)

type orderedMap struct {
	db    *sql.DB
	table string
}

func (m *orderedMap) Get(key []byte) ([]byte, bool, error) {
	var v []byte
	err := m.db.QueryRow(fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, m.table), key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitekv: get: %w", err)
	}
	return v, true, nil
}

func (m *orderedMap) Put(key, value []byte) error {
	_, err := m.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, m.table),
		key, value)
	if err != nil {
		return fmt.Errorf("sqlitekv: put: %w", err)
	}
	return nil
}

func (m *orderedMap) Remove(key []byte) error {
	_, err := m.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, m.table), key)
	if err != nil {
		return fmt.Errorf("sqlitekv: remove: %w", err)
	}
	return nil
}

func (m *orderedMap) Scan(first, last []byte) (kv.Iterator, error) {
	query := fmt.Sprintf(`SELECT k, v FROM %s`, m.table)
	var args []any
	var where []string
	if first != nil {
		where = append(where, "k >= ?")
		args = append(args, first)
	}
	if last != nil {
		where = append(where, "k < ?")
		args = append(args, last)
	}
	if len(where) > 0 {
		query += " WHERE " + where[0]
		for _, w := range where[1:] {
			query += " AND " + w
		}
	}
	query += " ORDER BY k ASC"

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: scan: %w", err)
	}
	return &scanIterator{rows: rows}, nil
}

func (m *orderedMap) ApproxSize() int64 {
	var n int64
	_ = m.db.QueryRow(fmt.Sprintf(`SELECT count(*) FROM %s`, m.table)).Scan(&n)
	return n
}

func (m *orderedMap) DiskUsage() int64 {
	var pageCount, pageSize int64
	_ = m.db.QueryRow(`PRAGMA page_count`).Scan(&pageCount)
	_ = m.db.QueryRow(`PRAGMA page_size`).Scan(&pageSize)
	return pageCount * pageSize
}

type scanIterator struct {
	rows *sql.Rows
	k, v []byte
	err  error
}

func (s *scanIterator) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		return false
	}
	if err := s.rows.Scan(&s.k, &s.v); err != nil {
		s.err = err
		return false
	}
	return true
}

func (s *scanIterator) Key() []byte   { return s.k }
func (s *scanIterator) Value() []byte { return s.v }
func (s *scanIterator) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}
func (s *scanIterator) Close() error { return s.rows.Close() }
