// Package savestate persists named save slots, each holding one or more
// sequence-numbered generations of a scheduler.SaveState blob, in an embedded
// go.etcd.io/bbolt database. There is no compaction policy: an old
// generation is only removed if a caller explicitly asks for it, which
// is not currently exposed.
package savestate

import (
	"encoding/binary"
	"errors"

	bolt "go.etcd.io/bbolt"
)

// ErrNoSuchSlot is returned by Load when the named slot has never been
// saved to.
var ErrNoSuchSlot = errors.New("savestate: no such slot")

// Store is a bbolt-backed collection of named save slots.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends blob as the newest generation of slot.
func (s *Store) Save(slot string, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(slot))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(revisionKey(seq), blob)
	})
}

// Load returns the newest generation of slot.
func (s *Store) Load(slot string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(slot))
		if bucket == nil {
			return ErrNoSuchSlot
		}
		k, v := bucket.Cursor().Last()
		if k == nil {
			return ErrNoSuchSlot
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Slots returns the names of every slot that has ever been saved to.
func (s *Store) Slots() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// revisionKey encodes seq big-endian so bbolt's byte-lexicographic key
// ordering matches numeric ordering, keeping Cursor().Last() cheap.
func revisionKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
