package boltstore

import (
	"context"
	"encoding/json"
	"fmt"

	"cpmboard/internal/listing"

	bolt "go.etcd.io/bbolt"
)

// EngagementLedger implements listing.EngagementLedger on BoltDB. Marks are
// keyed by "listingID:deviceID:kind"; presence of the key means the device
// has an active engagement of that kind.
type EngagementLedger struct {
	db *bolt.DB
}

var _ listing.EngagementLedger = (*EngagementLedger)(nil)

func engagementKey(listingID, deviceID string, kind listing.EngagementKind) []byte {
	return []byte(listingID + ":" + deviceID + ":" + string(kind))
}

// Apply runs one engagement attempt in a single write transaction spanning
// the listings and engagements buckets. decide is called with the current
// listing and whether the device's mark for kind is active; when it returns
// true, the listing mutation it performed is persisted and the mark is set
// to activate, all before the transaction commits. A decide error aborts
// the transaction and is returned verbatim. The second return value reports
// whether the attempt was applied.
func (s *EngagementLedger) Apply(ctx context.Context, listingID, deviceID string, kind listing.EngagementKind, activate bool, decide func(l *listing.Listing, active bool) (bool, error)) (*listing.Listing, bool, error) {
	var out *listing.Listing
	var applied bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(BucketListings)
		marks := tx.Bucket(BucketEngagements)
		if records == nil || marks == nil {
			return fmt.Errorf("engagement buckets not found")
		}

		data := records.Get([]byte(listingID))
		if data == nil {
			return listing.ErrNotFound
		}
		var l listing.Listing
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("failed to unmarshal listing: %w", err)
		}

		key := engagementKey(listingID, deviceID, kind)
		active := marks.Get(key) != nil

		ok, err := decide(&l, active)
		if err != nil {
			return err
		}
		if !ok {
			out = &l
			return nil
		}

		newData, err := json.Marshal(&l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if err := records.Put([]byte(listingID), newData); err != nil {
			return err
		}

		if activate {
			if err := marks.Put(key, []byte{1}); err != nil {
				return err
			}
		} else {
			if err := marks.Delete(key); err != nil {
				return err
			}
		}

		out = &l
		applied = true
		return nil
	})

	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// Has reports whether the device has an active engagement of this kind.
func (s *EngagementLedger) Has(ctx context.Context, listingID, deviceID string, kind listing.EngagementKind) (bool, error) {
	var active bool

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketEngagements)
		if bucket == nil {
			return nil
		}

		active = bucket.Get(engagementKey(listingID, deviceID, kind)) != nil
		return nil
	})

	return active, err
}

// Set records or clears an engagement mark for the device.
func (s *EngagementLedger) Set(ctx context.Context, listingID, deviceID string, kind listing.EngagementKind, active bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketEngagements)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketEngagements)
		}

		key := engagementKey(listingID, deviceID, kind)
		if active {
			return bucket.Put(key, []byte{1})
		}
		return bucket.Delete(key)
	})
}

// DeleteForListing removes all engagement marks for a listing.
func (s *EngagementLedger) DeleteForListing(ctx context.Context, listingID string) error {
	prefix := []byte(listingID + ":")

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketEngagements)
		if bucket == nil {
			return nil
		}

		// Collect keys to delete (can't delete while iterating)
		var keysToDelete [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			keysToDelete = append(keysToDelete, append([]byte{}, k...))
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

// ReportLedger implements listing.ReportLedger on BoltDB. Report records
// are keyed by "timestampNanos:id" for chronological ordering; an index
// bucket keyed by "listingID:deviceID:reportID" serves duplicate checks and
// cascade deletes with prefix scans.
type ReportLedger struct {
	db *bolt.DB
}

var _ listing.ReportLedger = (*ReportLedger)(nil)

func reportKey(r listing.Report) []byte {
	return []byte(fmt.Sprintf("%d:%s", r.CreatedAt.UnixNano(), r.ID))
}

func reportIndexKey(listingID, deviceID, reportID string) []byte {
	return []byte(listingID + ":" + deviceID + ":" + reportID)
}

// File runs one report attempt in a single write transaction spanning the
// listings, reports, and report index buckets. decide is called with the
// current listing and whether rec's device has already reported it; when it
// returns true, the listing mutation it performed is persisted and rec is
// stored with its index entry, all before the transaction commits. A decide
// error aborts the transaction and is returned verbatim. The second return
// value reports whether the record was filed.
func (s *ReportLedger) File(ctx context.Context, rec listing.Report, decide func(l *listing.Listing, reported bool) (bool, error)) (*listing.Listing, bool, error) {
	var out *listing.Listing
	var filed bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(BucketListings)
		reports := tx.Bucket(BucketReports)
		index := tx.Bucket(BucketReportIndex)
		if records == nil || reports == nil || index == nil {
			return fmt.Errorf("report buckets not found")
		}

		data := records.Get([]byte(rec.ListingID))
		if data == nil {
			return listing.ErrNotFound
		}
		var l listing.Listing
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("failed to unmarshal listing: %w", err)
		}

		prefix := []byte(rec.ListingID + ":" + rec.DeviceID + ":")
		c := index.Cursor()
		k, _ := c.Seek(prefix)
		reported := k != nil && hasPrefix(k, prefix)

		ok, err := decide(&l, reported)
		if err != nil {
			return err
		}
		if !ok {
			out = &l
			return nil
		}

		newData, err := json.Marshal(&l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if err := records.Put([]byte(rec.ListingID), newData); err != nil {
			return err
		}

		recData, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		key := reportKey(rec)
		if err := reports.Put(key, recData); err != nil {
			return err
		}
		if err := index.Put(reportIndexKey(rec.ListingID, rec.DeviceID, rec.ID), key); err != nil {
			return err
		}

		out = &l
		filed = true
		return nil
	})

	if err != nil {
		return nil, false, err
	}
	return out, filed, nil
}

// Add stores a report record and its index entry.
func (s *ReportLedger) Add(ctx context.Context, r listing.Report) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReports)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketReports)
		}

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}

		key := reportKey(r)
		if err := bucket.Put(key, data); err != nil {
			return err
		}

		index := tx.Bucket(BucketReportIndex)
		if index != nil {
			if err := index.Put(reportIndexKey(r.ListingID, r.DeviceID, r.ID), key); err != nil {
				return err
			}
		}

		return nil
	})
}

// HasReported checks whether a device has already reported a listing.
func (s *ReportLedger) HasReported(ctx context.Context, listingID, deviceID string) (bool, error) {
	var found bool
	prefix := []byte(listingID + ":" + deviceID + ":")

	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketReportIndex)
		if index == nil {
			return nil
		}

		c := index.Cursor()
		k, _ := c.Seek(prefix)
		found = k != nil && hasPrefix(k, prefix)
		return nil
	})

	return found, err
}

// ListAll returns all report records, newest first.
func (s *ReportLedger) ListAll(ctx context.Context) ([]listing.Report, error) {
	var reports []listing.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketReports)
		if bucket == nil {
			return nil
		}

		// Keys are timestamp-ordered; walk backwards for newest first.
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r listing.Report
			if err := json.Unmarshal(v, &r); err != nil {
				// Skip malformed entries
				continue
			}
			reports = append(reports, r)
		}

		return nil
	})

	return reports, err
}

// DeleteForListing removes all report records and index entries for a
// listing.
func (s *ReportLedger) DeleteForListing(ctx context.Context, listingID string) error {
	prefix := []byte(listingID + ":")

	return s.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(BucketReportIndex)
		bucket := tx.Bucket(BucketReports)
		if index == nil || bucket == nil {
			return nil
		}

		var indexKeys, recordKeys [][]byte
		c := index.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			indexKeys = append(indexKeys, append([]byte{}, k...))
			recordKeys = append(recordKeys, append([]byte{}, v...))
		}

		for _, k := range recordKeys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		for _, k := range indexKeys {
			if err := index.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}
