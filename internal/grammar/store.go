package grammar

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrStoreUnavailable wraps every storage-layer failure. Callers treat
// it as a cache miss; it is never fatal for tokenization.
var ErrStoreUnavailable = errors.New("grammar store unavailable")

var grammarsBucket = []byte("grammars")

// Store is the persistent grammar cache, one bbolt file shared by all
// documents. A nil *Store is valid and always misses.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// StoreStats aggregates the cache for diagnostics.
type StoreStats struct {
	Count          int
	TotalSizeBytes int64
}

// OpenStore opens (creating if needed) the grammar cache at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(grammarsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the entry for languageID, stamping LastUsedAt. Entries
// whose binary no longer validates are deleted and reported absent.
func (s *Store) Get(languageID string) (Entry, bool, error) {
	if s == nil || s.db == nil {
		return Entry{}, false, nil
	}

	var entry Entry
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(grammarsBucket)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(languageID))
		if raw == nil {
			return nil
		}

		e, err := decodeEntry(raw)
		if err != nil || !e.Valid() {
			return b.Delete([]byte(languageID))
		}

		e.LastUsedAt = s.now()
		encoded, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(languageID), encoded); err != nil {
			return err
		}

		entry = e
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return entry, found, nil
}

// Put overwrites the entry for its language, stamping version,
// checksum, size, and timestamps when absent.
func (s *Store) Put(entry Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: store not open", ErrStoreUnavailable)
	}
	if entry.LanguageID == "" {
		return errors.New("entry has no language id")
	}

	entry.Version = entrySchemaVersion
	entry.SizeBytes = int64(len(entry.Binary))
	if entry.Checksum == "" {
		entry.Checksum = Checksum(entry.Binary)
	}
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = s.now()
	}
	if entry.LastUsedAt.IsZero() {
		entry.LastUsedAt = entry.DownloadedAt
	}

	encoded, err := encodeEntry(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(grammarsBucket).Put([]byte(entry.LanguageID), encoded)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete forces re-acquisition of a language's grammar on the next
// resolve. Deleting an absent entry is not an error.
func (s *Store) Delete(languageID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(grammarsBucket).Delete([]byte(languageID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// List returns all entries sorted by language id, without binaries
// touched (LastUsedAt is not updated).
func (s *Store) List() ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(grammarsBucket).ForEach(func(k, v []byte) error {
			e, err := decodeEntry(v)
			if err != nil {
				return nil // skip undecodable entries
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].LanguageID < entries[j].LanguageID })
	return entries, nil
}

func (s *Store) Stats() (StoreStats, error) {
	entries, err := s.List()
	if err != nil {
		return StoreStats{}, err
	}
	stats := StoreStats{Count: len(entries)}
	for _, e := range entries {
		stats.TotalSizeBytes += e.SizeBytes
	}
	return stats, nil
}

func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := gob.NewEncoder(w).Encode(&e); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return Entry{}, err
	}
	if e.Version != entrySchemaVersion {
		return Entry{}, fmt.Errorf("unknown entry version %d", e.Version)
	}
	return e, nil
}
