// Package dedup gives each document a stable content-derived identity and
// keeps the ledger that makes ingestion idempotent: byte-identical
// resubmissions are recognized regardless of filename.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.etcd.io/bbolt"
)

const fingerprintBucket = "fingerprints"

// Fingerprint returns the deterministic identity of a document: the hex
// SHA-256 of its content. Filename and arrival time play no part.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Ledger records which fingerprints have entered processing. Register is
// the only admission path and is atomic: of two concurrent submissions of
// the same document exactly one is fresh.
type Ledger interface {
	// Register marks the fingerprint as processed. It reports whether the
	// caller won: false means the document was already registered and must
	// be discarded.
	Register(fingerprint string) (fresh bool, err error)

	// Seen reports whether the fingerprint has been registered.
	Seen(fingerprint string) (bool, error)

	// Release forgets a fingerprint. Only the storage-failure requeue path
	// uses this, so a retried document is not misread as a duplicate.
	Release(fingerprint string) error
}

// BoltLedger implements the Ledger interface on a bbolt database, typically
// the same file as the record store.
type BoltLedger struct {
	db *bbolt.DB
}

// NewBoltLedger creates a BoltLedger on an open database, creating its
// bucket if needed.
func NewBoltLedger(db *bbolt.DB) (*BoltLedger, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(fingerprintBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating fingerprint bucket: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

// Register checks and registers the fingerprint in one write transaction;
// bbolt serializes writers, so concurrent submissions of the same document
// yield exactly one fresh=true.
func (l *BoltLedger) Register(fingerprint string) (bool, error) {
	fresh := false
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(fingerprintBucket))
		if bucket.Get([]byte(fingerprint)) != nil {
			return nil
		}
		fresh = true
		return bucket.Put([]byte(fingerprint), []byte{1})
	})
	if err != nil {
		return false, fmt.Errorf("registering fingerprint: %w", err)
	}
	return fresh, nil
}

// Seen reports whether the fingerprint has been registered.
func (l *BoltLedger) Seen(fingerprint string) (bool, error) {
	seen := false
	err := l.db.View(func(tx *bbolt.Tx) error {
		seen = tx.Bucket([]byte(fingerprintBucket)).Get([]byte(fingerprint)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return seen, nil
}

// Release forgets a fingerprint.
func (l *BoltLedger) Release(fingerprint string) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(fingerprintBucket)).Delete([]byte(fingerprint))
	})
	if err != nil {
		return fmt.Errorf("releasing fingerprint: %w", err)
	}
	return nil
}
