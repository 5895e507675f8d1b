// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/heist/storage"
)

// touchInterval bounds how often reads rewrite a session's idle clock.
const touchInterval = time.Minute

var (
	flagsBucket   = []byte("flags")
	touchedBucket = []byte("touched")
)

// Store implements storage.Repository backed by a BBolt database. Each
// session owns a nested bucket under "flags" whose keys are big-endian
// sequence numbers, so a cursor walk yields flags in registration order.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.Purger     = (*Store)(nil)
)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{flagsBucket, touchedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func touchedAt(tx *bbolt.Tx, sessionID string) (time.Time, bool) {
	v := tx.Bucket(touchedBucket).Get([]byte(sessionID))
	if len(v) != 8 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(v))), true
}

func (s *Store) touch(tx *bbolt.Tx, sessionID string) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(s.now().UnixNano()))
	return tx.Bucket(touchedBucket).Put([]byte(sessionID), buf)
}

func (s *Store) Add(_ context.Context, sessionID, flag string) (bool, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return false, err
	}
	added := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(flagsBucket).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		if err := s.touch(tx, sessionID); err != nil {
			return err
		}

		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(v) == flag {
				return nil
			}
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(itob(seq), []byte(flag)); err != nil {
			return err
		}
		added = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("adding flag for session %s: %w", sessionID, err)
	}
	return added, nil
}

// List returns the session's flags from a read transaction. The idle clock is
// rewritten only when the stored touch is older than touchInterval.
func (s *Store) List(_ context.Context, sessionID string) ([]string, error) {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return nil, err
	}
	flags := []string{}
	stale := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(flagsBucket).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		if err := b.ForEach(func(_, v []byte) error {
			flags = append(flags, string(v))
			return nil
		}); err != nil {
			return err
		}
		last, ok := touchedAt(tx, sessionID)
		stale = !ok || s.now().Sub(last) >= touchInterval
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing flags for session %s: %w", sessionID, err)
	}
	if stale {
		err = s.db.Update(func(tx *bbolt.Tx) error {
			if tx.Bucket(flagsBucket).Bucket([]byte(sessionID)) == nil {
				return nil
			}
			return s.touch(tx, sessionID)
		})
		if err != nil {
			return nil, fmt.Errorf("touching session %s: %w", sessionID, err)
		}
	}
	return flags, nil
}

func (s *Store) Delete(_ context.Context, sessionID string) error {
	if err := storage.CheckSessionID(sessionID); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteSession(tx, []byte(sessionID))
	})
}

func deleteSession(tx *bbolt.Tx, id []byte) error {
	flags := tx.Bucket(flagsBucket)
	if flags.Bucket(id) != nil {
		if err := flags.DeleteBucket(id); err != nil {
			return err
		}
	}
	return tx.Bucket(touchedBucket).Delete(id)
}

// Purge removes sessions last touched before idleBefore.
func (s *Store) Purge(_ context.Context, idleBefore time.Time) (int, error) {
	cutoff := uint64(idleBefore.UnixNano())
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var stale [][]byte
		c := tx.Bucket(touchedBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) == 8 && binary.BigEndian.Uint64(v) < cutoff {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, id := range stale {
			if err := deleteSession(tx, id); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purging idle sessions: %w", err)
	}
	return removed, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
