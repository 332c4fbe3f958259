package receipt

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	successBucket = "successful_receipts"
	failedBucket  = "failed_receipts"
	counterBucket = "receipt_counters"
)

// ErrAlreadyRecorded is returned by Put when a record with the same ID has
// already reached a terminal status. Records are append-only.
var ErrAlreadyRecorded = errors.New("record already exists")

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("record not found")

// Store is the durable ledger of processing outcomes, partitioned into
// successful and failed records.
type Store interface {
	// Put appends a terminal record. Putting an ID that already exists in
	// either partition fails with ErrAlreadyRecorded.
	Put(record *Record) error

	// Get retrieves a record by ID from either partition.
	Get(id string) (*Record, error)

	// ListSuccessful returns successful records, most recent first.
	ListSuccessful() ([]*Record, error)

	// ListFailed returns failed records, most recent first.
	ListFailed() ([]*Record, error)

	// NextReceiptID reserves the next canonical YYMMDD_NNN receipt name
	// for the given date.
	NextReceiptID(t time.Time) (string, error)

	// Close closes the store
	Close() error
}

// OpenDB opens the bbolt database file shared by the record store and the
// dedup ledger.
func OpenDB(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	return db, nil
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a new BoltStore on an open database, creating its
// buckets if needed.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{successBucket, failedBucket, counterBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func bucketFor(status Status) string {
	if status == StatusSuccess {
		return successBucket
	}
	return failedBucket
}

// Put appends a terminal record, refusing to overwrite either partition.
func (b *BoltStore) Put(record *Record) error {
	if record.Status != StatusSuccess && record.Status != StatusFailed {
		return fmt.Errorf("record %s has no terminal status", record.ID)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(record.ID)
		if tx.Bucket([]byte(successBucket)).Get(key) != nil ||
			tx.Bucket([]byte(failedBucket)).Get(key) != nil {
			return fmt.Errorf("putting record %s: %w", record.ID, ErrAlreadyRecorded)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return tx.Bucket([]byte(bucketFor(record.Status))).Put(key, data)
	})
}

// Get retrieves a record by ID, checking both partitions.
func (b *BoltStore) Get(id string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(successBucket)).Get([]byte(id))
		if data == nil {
			data = tx.Bucket([]byte(failedBucket)).Get([]byte(id))
		}
		if data == nil {
			return fmt.Errorf("getting record %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListSuccessful returns successful records, most recent first.
func (b *BoltStore) ListSuccessful() ([]*Record, error) {
	return b.list(successBucket)
}

// ListFailed returns failed records, most recent first.
func (b *BoltStore) ListFailed() ([]*Record, error) {
	return b.list(failedBucket)
}

func (b *BoltStore) list(bucket string) ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ProcessedTimestamp.Equal(records[j].ProcessedTimestamp) {
			return records[i].ProcessedTimestamp.After(records[j].ProcessedTimestamp)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// NextReceiptID reserves the next YYMMDD_NNN name for the given date using
// an atomic per-day counter.
func (b *BoltStore) NextReceiptID(t time.Time) (string, error) {
	day := t.Format("060102")
	var id string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(counterBucket))
		key := []byte(day)
		var counter uint64
		if data := bucket.Get(key); len(data) == 8 {
			counter = binary.BigEndian.Uint64(data)
		}
		counter++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, counter)
		if err := bucket.Put(key, buf); err != nil {
			return err
		}
		id = fmt.Sprintf("%s_%03d", day, counter)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reserving receipt id: %w", err)
	}
	return id, nil
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
