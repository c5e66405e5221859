package storage

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// BufferPut stores a binary payload under id, replacing any previous payload.
func (db *DB) BufferPut(id string, data []byte) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO buffers (id, data, size, created_at) VALUES (?, ?, ?, ?)",
		id, data, len(data), time.Now().UTC(),
	)
	return err
}

// BufferGet loads the payload stored under id.
func (db *DB) BufferGet(id string) ([]byte, error) {
	var data []byte
	err := db.QueryRow("SELECT data FROM buffers WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// BufferCount returns the number of stored payloads and their total size.
func (db *DB) BufferCount() (int, int64, error) {
	var count int
	var total int64
	err := db.QueryRow("SELECT COUNT(*), COALESCE(SUM(size), 0) FROM buffers").Scan(&count, &total)
	return count, total, err
}
