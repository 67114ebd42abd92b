package listing

import "context"

// Store defines the persistence contract for listings.
//
// All mutating operations on a store instance are serialized: the
// implementation must admit a single writer at a time, so that the
// read-modify-write cycle inside Update is atomic with respect to every
// other write. This is a documented contract, not an incidental effect —
// delta-based counter updates are only correct because of it.
type Store interface {
	// ListAll returns a snapshot of all listings in insertion order,
	// most recently created first.
	ListAll(ctx context.Context) ([]Listing, error)

	// GetByID returns the listing with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Listing, error)

	// Insert adds the listing at the head of the sequence. Returns
	// ErrDuplicateID if the id is already present.
	Insert(ctx context.Context, l Listing) error

	// Update loads the record, applies mutate, and persists the result in
	// one atomic step. If mutate returns an error the record is left
	// unchanged and the error is returned verbatim. Returns ErrNotFound
	// if the id is absent.
	Update(ctx context.Context, id string, mutate func(*Listing) error) (*Listing, error)

	// Delete removes the listing and reports whether a record was
	// actually removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// EngagementLedger tracks which devices have an active engagement of a
// given kind on a listing, making repeated engagement calls idempotent.
type EngagementLedger interface {
	// Apply runs one engagement attempt atomically under the store's
	// single-writer discipline: decide receives the current listing and
	// whether the device's mark for kind is active, and when it returns
	// true the listing mutation it performed is persisted and the mark is
	// set to activate — all in the same write transaction, so the mark
	// consultation cannot interleave with another writer. A decide error
	// aborts the transaction and is returned verbatim. The second return
	// value reports whether the attempt was applied.
	Apply(ctx context.Context, listingID, deviceID string, kind EngagementKind, activate bool, decide func(l *Listing, active bool) (bool, error)) (*Listing, bool, error)

	// DeleteForListing removes all ledger entries for a listing.
	DeleteForListing(ctx context.Context, listingID string) error
}

// ReportLedger persists report records and answers duplicate checks.
type ReportLedger interface {
	// File runs one report attempt atomically under the store's
	// single-writer discipline: decide receives the current listing and
	// whether rec's device has already reported it, and when it returns
	// true the listing mutation it performed is persisted and rec is
	// recorded — all in the same write transaction. A decide error aborts
	// the transaction and is returned verbatim. The second return value
	// reports whether the record was filed.
	File(ctx context.Context, rec Report, decide func(l *Listing, reported bool) (bool, error)) (*Listing, bool, error)

	// ListAll returns all report records, newest first.
	ListAll(ctx context.Context) ([]Report, error)

	// DeleteForListing removes all report records referencing a listing.
	DeleteForListing(ctx context.Context, listingID string) error
}
