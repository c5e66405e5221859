package buffercache

import (
	"errors"
	"fmt"

	"connkit/internal/jsvmerr"
	"connkit/internal/storage"
)

// SQLite persists payloads in the storage database so that handles survive
// across process runs.
type SQLite struct {
	db *storage.DB
}

// NewSQLite wraps an open database. Close closes the database.
func NewSQLite(db *storage.DB) *SQLite {
	return &SQLite{db: db}
}

// OpenSQLite opens the database at path and wraps it.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buffer cache: %w", err)
	}
	return NewSQLite(db), nil
}

// Put implements Store.
func (s *SQLite) Put(data []byte) (Handle, error) {
	id := newID()
	if data == nil {
		data = []byte{}
	}
	if err := s.db.BufferPut(id, data); err != nil {
		return Handle{}, fmt.Errorf("store buffer: %w", err)
	}
	return Handle{ID: id, Bytes: len(data)}, nil
}

// Get implements Store.
func (s *SQLite) Get(id string) ([]byte, error) {
	data, err := s.db.BufferGet(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, jsvmerr.ErrBufferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load buffer %s: %w", id, err)
	}
	return data, nil
}

// Stats implements Store.
func (s *SQLite) Stats() (Stats, error) {
	count, total, err := s.db.BufferCount()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Entries: count, Bytes: total}, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}
