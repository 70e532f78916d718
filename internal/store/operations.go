package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilupskalvis/tidy/internal/models"
	bolt "go.etcd.io/bbolt"
)

// AppendRecord stores a new operation record, assigning its ID and, when
// unset, its timestamp. The record is durable once this returns.
func (s *Store) AppendRecord(rec *models.OperationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ops := tx.Bucket(bucketOperations)

		seq, err := ops.NextSequence()
		if err != nil {
			return fmt.Errorf("next record id: %w", err)
		}
		rec.ID = int64(seq)
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := ops.Put(idKey(rec.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBatchIndex).Put(batchKey(rec.BatchID, rec.ID), []byte{}); err != nil {
			return err
		}
		if !rec.Undone {
			return tx.Bucket(bucketPending).Put(idKey(rec.ID), []byte(rec.BatchID))
		}
		return nil
	})
}

// GetRecord returns a record by ID, or nil if it does not exist.
func (s *Store) GetRecord(id int64) (*models.OperationRecord, error) {
	var rec *models.OperationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOperations).Get(idKey(id))
		if v == nil {
			return nil
		}
		rec = &models.OperationRecord{}
		return json.Unmarshal(v, rec)
	})
	return rec, err
}

// PendingRecords returns the batch's records that are not yet undone,
// newest first.
func (s *Store) PendingRecords(batchID string) ([]*models.OperationRecord, error) {
	var recs []*models.OperationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		ops := tx.Bucket(bucketOperations)
		pending := tx.Bucket(bucketPending)
		prefix := batchPrefix(batchID)

		c := tx.Bucket(bucketBatchIndex).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			idBytes := k[len(prefix):]
			if pending.Get(idBytes) == nil {
				continue
			}
			v := ops.Get(idBytes)
			if v == nil {
				continue
			}
			var rec models.OperationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].ID > recs[j].ID })
	return recs, nil
}

// MarkUndone flips a record's undone flag. Marking an already undone or
// missing record is a no-op.
func (s *Store) MarkUndone(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ops := tx.Bucket(bucketOperations)
		key := idKey(id)
		v := ops.Get(key)
		if v == nil {
			return nil
		}

		var rec models.OperationRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		if rec.Undone {
			return nil
		}
		rec.Undone = true

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := ops.Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketPending).Delete(key)
	})
}

// LatestPendingBatch returns the batch of the newest record that is not yet
// undone, or "" when everything has been undone.
func (s *Store) LatestPendingBatch() (string, error) {
	var batchID string
	err := s.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketPending).Cursor().Last()
		if v != nil {
			batchID = string(v)
		}
		return nil
	})
	return batchID, err
}

// RecentRecords returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) RecentRecords(limit int) ([]*models.OperationRecord, error) {
	var recs []*models.OperationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOperations).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(recs) >= limit {
				break
			}
			var rec models.OperationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record: %w", err)
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	return recs, err
}

// DeleteRecordsBefore removes records older than cutoff. With undoneOnly set,
// records that can still be undone are kept. Returns the number removed.
func (s *Store) DeleteRecordsBefore(cutoff time.Time, undoneOnly bool) (int, error) {
	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		ops := tx.Bucket(bucketOperations)
		index := tx.Bucket(bucketBatchIndex)
		pending := tx.Bucket(bucketPending)

		var doomed []*models.OperationRecord
		if err := ops.ForEach(func(k, v []byte) error {
			var rec models.OperationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record %d: %w", keyID(k), err)
			}
			if !rec.Timestamp.Before(cutoff) {
				return nil
			}
			if undoneOnly && !rec.Undone {
				return nil
			}
			doomed = append(doomed, &rec)
			return nil
		}); err != nil {
			return err
		}

		for _, rec := range doomed {
			key := idKey(rec.ID)
			if err := ops.Delete(key); err != nil {
				return err
			}
			if err := index.Delete(batchKey(rec.BatchID, rec.ID)); err != nil {
				return err
			}
			if err := pending.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// BatchSummaries aggregates records per batch, most recently active batch
// first. limit <= 0 returns all batches.
func (s *Store) BatchSummaries(limit int) ([]*models.BatchSummary, error) {
	byBatch := make(map[string]*models.BatchSummary)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOperations).ForEach(func(k, v []byte) error {
			var rec models.OperationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal record %d: %w", keyID(k), err)
			}
			sum, ok := byBatch[rec.BatchID]
			if !ok {
				sum = &models.BatchSummary{BatchID: rec.BatchID, First: rec.Timestamp, Last: rec.Timestamp}
				byBatch[rec.BatchID] = sum
			}
			if rec.Timestamp.Before(sum.First) {
				sum.First = rec.Timestamp
			}
			if rec.Timestamp.After(sum.Last) {
				sum.Last = rec.Timestamp
			}
			sum.Total++
			if !rec.Undone {
				sum.Pending++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortSummaries(byBatch, limit), nil
}

func sortSummaries(byBatch map[string]*models.BatchSummary, limit int) []*models.BatchSummary {
	out := make([]*models.BatchSummary, 0, len(byBatch))
	for _, sum := range byBatch {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Last.Equal(out[j].Last) {
			return out[i].BatchID < out[j].BatchID
		}
		return out[i].Last.After(out[j].Last)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
