// Package kvstore wraps skiplist.SkipList with the validation and
// persistence contract ReactorKV's server talks to.
//
// Author grounding: original_source/src/storage/kvstore.h/.cpp
// (empty-key rejection, LOG_INFO/LOG_DEBUG/LOG_WARN/LOG_ERROR call sites
// mapped onto the teacher's plain log.Printf usage).
package kvstore

import (
	"errors"
	"fmt"
	"log"

	"github.com/Lucky-mi/reactorkv/skiplist"
)

// ErrEmptyKey is returned by Put when called with an empty key. Get, Del
// and Exists report an empty key as absent instead.
var ErrEmptyKey = errors.New("kvstore: empty key is not allowed")

// Store is a thin, validating wrapper over a skiplist.SkipList.
type Store struct {
	index *skiplist.SkipList
}

// New constructs a Store whose underlying index caps its level count at
// maxLevel. A non-positive maxLevel uses the skiplist package's default.
func New(maxLevel int) *Store {
	log.Printf("kvstore: initialized with maxLevel=%d", maxLevel)
	return &Store{index: skiplist.New(maxLevel)}
}

// Put stores value under key, overwriting any existing value. Reports
// true when key is new.
func (s *Store) Put(key, value string) (bool, error) {
	if key == "" {
		log.Printf("kvstore: put - empty key is not allowed")
		return false, ErrEmptyKey
	}
	isNew := s.index.Insert(key, value)
	return isNew, nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	value, found := s.index.Search(key)
	return value, found
}

// Del removes key, reporting whether it was present.
func (s *Store) Del(key string) bool {
	if key == "" {
		return false
	}
	return s.index.Remove(key)
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) bool {
	if key == "" {
		return false
	}
	return s.index.Contains(key)
}

// Size returns the number of stored keys.
func (s *Store) Size() int { return s.index.Size() }

// Clear removes every key.
func (s *Store) Clear() {
	s.index.Clear()
	log.Printf("kvstore: cleared")
}

// Save persists every key/value pair to filepath.
func (s *Store) Save(filepath string) error {
	if filepath == "" {
		return fmt.Errorf("kvstore: save: empty filepath")
	}
	if err := s.index.DumpFile(filepath); err != nil {
		return fmt.Errorf("kvstore: save: %w", err)
	}
	log.Printf("kvstore: saved to %s, size=%d", filepath, s.index.Size())
	return nil
}

// Load replaces the Store's contents with the pairs read from filepath.
func (s *Store) Load(filepath string) error {
	if filepath == "" {
		return fmt.Errorf("kvstore: load: empty filepath")
	}
	if err := s.index.LoadFile(filepath); err != nil {
		return fmt.Errorf("kvstore: load: %w", err)
	}
	log.Printf("kvstore: loaded from %s, size=%d", filepath, s.index.Size())
	return nil
}

// Dump renders the underlying skip list's structure for debugging.
func (s *Store) Dump() string {
	return s.index.Dump()
}
