package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"cpmboard/internal/listing"

	bolt "go.etcd.io/bbolt"
)

// ListingStore implements listing.Store on BoltDB. Insertion order is kept
// by an order bucket whose keys are the bitwise complement of the bucket
// sequence number: ascending cursor iteration therefore yields the most
// recently created listing first.
type ListingStore struct {
	db *bolt.DB
}

// Ensure ListingStore implements listing.Store
var _ listing.Store = (*ListingStore)(nil)

// orderKey builds the inverted-sequence key for the order bucket.
func orderKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ^seq)
	return key
}

// ListAll returns a snapshot of all listings, newest first.
func (s *ListingStore) ListAll(ctx context.Context) ([]listing.Listing, error) {
	var listings []listing.Listing

	err := s.db.View(func(tx *bolt.Tx) error {
		order := tx.Bucket(BucketListingOrder)
		records := tx.Bucket(BucketListings)
		if order == nil || records == nil {
			return nil
		}

		return order.ForEach(func(k, id []byte) error {
			data := records.Get(id)
			if data == nil {
				// Orphaned order entry; skip rather than fail the read.
				return nil
			}
			var l listing.Listing
			if err := json.Unmarshal(data, &l); err != nil {
				return fmt.Errorf("failed to unmarshal listing %s: %w", id, err)
			}
			listings = append(listings, l)
			return nil
		})
	})

	return listings, err
}

// GetByID returns the listing with the given id, or listing.ErrNotFound.
func (s *ListingStore) GetByID(ctx context.Context, id string) (*listing.Listing, error) {
	var l *listing.Listing

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketListings)
		if bucket == nil {
			return listing.ErrNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return listing.ErrNotFound
		}

		l = &listing.Listing{}
		return json.Unmarshal(data, l)
	})

	if err != nil {
		return nil, err
	}
	return l, nil
}

// Insert adds the listing at the head of the sequence.
func (s *ListingStore) Insert(ctx context.Context, l listing.Listing) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(BucketListings)
		order := tx.Bucket(BucketListingOrder)
		byID := tx.Bucket(BucketListingOrderByID)
		if records == nil || order == nil || byID == nil {
			return fmt.Errorf("listing buckets not found")
		}

		if records.Get([]byte(l.ID)) != nil {
			return listing.ErrDuplicateID
		}

		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}

		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		key := orderKey(seq)

		if err := records.Put([]byte(l.ID), data); err != nil {
			return err
		}
		if err := order.Put(key, []byte(l.ID)); err != nil {
			return err
		}
		return byID.Put([]byte(l.ID), key)
	})
}

// Update loads the record, applies mutate, and persists the result inside
// a single write transaction. A mutate error aborts the transaction and is
// returned verbatim, leaving the record unchanged.
func (s *ListingStore) Update(ctx context.Context, id string, mutate func(*listing.Listing) error) (*listing.Listing, error) {
	var updated *listing.Listing

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketListings)
		if bucket == nil {
			return listing.ErrNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return listing.ErrNotFound
		}

		var l listing.Listing
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("failed to unmarshal listing: %w", err)
		}

		if err := mutate(&l); err != nil {
			return err
		}

		newData, err := json.Marshal(&l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if err := bucket.Put([]byte(id), newData); err != nil {
			return err
		}

		updated = &l
		return nil
	})

	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the listing and its order index entries. Returns whether
// a record was actually removed.
func (s *ListingStore) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(BucketListings)
		order := tx.Bucket(BucketListingOrder)
		byID := tx.Bucket(BucketListingOrderByID)
		if records == nil {
			return nil
		}

		if records.Get([]byte(id)) == nil {
			return nil
		}

		if err := records.Delete([]byte(id)); err != nil {
			return err
		}

		if byID != nil {
			if key := byID.Get([]byte(id)); key != nil && order != nil {
				if err := order.Delete(key); err != nil {
					return err
				}
			}
			if err := byID.Delete([]byte(id)); err != nil {
				return err
			}
		}

		removed = true
		return nil
	})

	return removed, err
}
