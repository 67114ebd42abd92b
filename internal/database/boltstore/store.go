// Package boltstore provides persistent storage using BoltDB (bbolt).
// It implements the listing store contract along with the report and
// engagement ledgers and the admin session store.
//
// bbolt admits exactly one write transaction at a time, so every mutating
// operation here is serialized against all others. That single-writer
// discipline is what makes the read-modify-write cycles of the moderation
// engine atomic; it is a contract of this package, not an accident.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketListings stores listing records keyed by id
	BucketListings = []byte("listings")

	// BucketListingOrder orders listing ids newest-first via inverted
	// sequence keys
	BucketListingOrder = []byte("listing_order")

	// BucketListingOrderByID maps a listing id back to its order key
	BucketListingOrderByID = []byte("listing_order_by_id")

	// BucketEngagements stores per-device engagement marks keyed by
	// "listingID:deviceID:kind"
	BucketEngagements = []byte("engagements")

	// BucketReports stores report records keyed by "timestamp:id"
	BucketReports = []byte("reports")

	// BucketReportIndex indexes reports by "listingID:deviceID:reportID"
	BucketReportIndex = []byte("report_index")

	// BucketAdminSessions stores admin session tokens with expiry
	BucketAdminSessions = []byte("admin_sessions")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "cpmboard.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "cpmboard.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketListings,
			BucketListingOrder,
			BucketListingOrderByID,
			BucketEngagements,
			BucketReports,
			BucketReportIndex,
			BucketAdminSessions,
		}

		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// ListingStore returns a listing store backed by this database.
func (s *Store) ListingStore() *ListingStore {
	return &ListingStore{db: s.db}
}

// EngagementLedger returns an engagement ledger backed by this database.
func (s *Store) EngagementLedger() *EngagementLedger {
	return &EngagementLedger{db: s.db}
}

// ReportLedger returns a report ledger backed by this database.
func (s *Store) ReportLedger() *ReportLedger {
	return &ReportLedger{db: s.db}
}

// SessionStore returns an admin session store backed by this database.
func (s *Store) SessionStore() *SessionStore {
	return &SessionStore{db: s.db}
}

// Stats returns database statistics.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}

// hasPrefix checks if a byte slice has a given prefix.
func hasPrefix(s, prefix []byte) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, b := range prefix {
		if s[i] != b {
			return false
		}
	}
	return true
}
