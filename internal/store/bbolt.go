// Package store provides bbolt-based persistence for tidy.
// It holds the undo log's operation records and the backup index in a single
// embedded bbolt database file. Every write commits (and fsyncs) before the
// call returns.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names used by the store.
var (
	bucketOperations = []byte("operations")    // id -> record JSON
	bucketBatchIndex = []byte("batch_index")   // batch_id ":" id -> empty
	bucketPending    = []byte("pending_index") // id -> batch_id, only while not undone
	bucketBackups    = []byte("backups")       // backup path -> entry JSON
)

// Store represents the bbolt database store.
type Store struct {
	db *bolt.DB
}

// New opens or creates a bbolt database at the given path and ensures all
// buckets exist.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initialize creates all required buckets.
func (s *Store) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketOperations,
			bucketBatchIndex,
			bucketPending,
			bucketBackups,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// idKey encodes a record ID big-endian so cursor order is insertion order.
func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func keyID(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}

// batchKey builds the batch index key "{batch_id}:{id}".
func batchKey(batchID string, id int64) []byte {
	return append(batchPrefix(batchID), idKey(id)...)
}

func batchPrefix(batchID string) []byte {
	return []byte(batchID + ":")
}
