package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kilupskalvis/tidy/internal/models"
	bolt "go.etcd.io/bbolt"
)

// SaveBackup indexes a backup entry by its directory path.
func (s *Store) SaveBackup(entry *models.BackupEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal backup entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).Put([]byte(entry.Path), data)
	})
}

// ListBackups returns every indexed backup, newest first.
func (s *Store) ListBackups() ([]*models.BackupEntry, error) {
	var entries []*models.BackupEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).ForEach(func(k, v []byte) error {
			var entry models.BackupEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal backup %s: %w", k, err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// DeleteBackup removes a backup from the index. Missing entries are ignored.
func (s *Store) DeleteBackup(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBackups).Delete([]byte(path))
	})
}
