package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cpmboard/internal/session"

	bolt "go.etcd.io/bbolt"
)

// SessionStore implements session.Store using BoltDB for persistence.
// Admin sessions survive server restarts until their expiry passes.
type SessionStore struct {
	db *bolt.DB
}

// Ensure SessionStore implements session.Store
var _ session.Store = (*SessionStore)(nil)

// Save persists a session (upsert operation).
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAdminSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		return bucket.Put([]byte(sess.Token), data)
	})
}

// Get retrieves a session by token. Returns (nil, nil) when the token is
// unknown.
func (s *SessionStore) Get(ctx context.Context, token string) (*session.Session, error) {
	var sess *session.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAdminSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		data := bucket.Get([]byte(token))
		if data == nil {
			return nil
		}

		sess = &session.Session{}
		return json.Unmarshal(data, sess)
	})

	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes a session by token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAdminSessions)
		if bucket == nil {
			return fmt.Errorf("session bucket not found")
		}

		return bucket.Delete([]byte(token))
	})
}

// DeleteExpired removes all sessions expired at the given time.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var count int

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketAdminSessions)
		if bucket == nil {
			return nil
		}

		// Collect keys to delete (can't delete while iterating)
		var keysToDelete [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var sess session.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				// Malformed entry, drop it
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
				return nil
			}
			if sess.Expired(now) {
				keysToDelete = append(keysToDelete, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keysToDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		count = len(keysToDelete)
		return nil
	})

	return count, err
}
