package healthlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned when an artifact id has no stored entry.
var ErrNotFound = fmt.Errorf("healthlog: artifact not found")

// Store persists log artifacts on behalf of the surrounding application.
// The session core hands artifacts over at close; everything after that is
// this store's concern.
type Store struct {
	db *badger.DB
}

// OpenStore opens (creating if needed) a badger-backed store at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("healthlog: create store dir: %w", err)
	}
	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("healthlog: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Put persists one artifact keyed by its id.
func (s *Store) Put(a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("healthlog: marshal artifact: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(a.ID), data)
	})
}

// Get loads an artifact by id.
func (s *Store) Get(id string) (*Artifact, error) {
	var a Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("healthlog: get artifact: %w", err)
	}
	return &a, nil
}

// List returns all stored artifacts, newest first.
func (s *Store) List() ([]*Artifact, error) {
	var out []*Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var a Artifact
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			})
			if err != nil {
				return err
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("healthlog: list artifacts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
