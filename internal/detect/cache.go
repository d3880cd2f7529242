// ResultStore caches serialized detection results keyed by a text digest,
// so repeated analysis of the same document skips model inference.
//
// Two base implementations exist: an in-memory map for tests and pathless
// configurations, and a bbolt-backed store that survives restarts. Either
// can be wrapped with an S3-FIFO eviction layer (see s3fifo.go) to bound
// memory and disk usage.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

// ResultStore is the detection result cache. Values are opaque serialized
// blobs owned by the caller. Implementations must be safe for concurrent
// use.
type ResultStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	Close() error
}

// CacheKey digests text (plus the detection parameters that change the
// result) into a stable store key.
func CacheKey(text, mode, language string) string {
	h := sha256.New()
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// NewResultStore builds the configured store stack: bbolt at path (or
// memory when path is empty), wrapped with S3-FIFO eviction when capacity
// > 0.
func NewResultStore(path string, capacity int, log *logger.Logger) (ResultStore, error) {
	var base ResultStore
	if path == "" {
		base = newMemoryStore()
	} else {
		var err error
		base, err = newBoltStore(path, log)
		if err != nil {
			return nil, err
		}
	}
	if capacity > 0 {
		return newS3FIFOStore(base, capacity, log), nil
	}
	return base, nil
}

// --- memoryStore ---------------------------------------------------------

type memoryStore struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func newMemoryStore() ResultStore {
	return &memoryStore{store: make(map[string][]byte)}
}

func (s *memoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	v, ok := s.store[key]
	s.mu.RUnlock()
	return v, ok
}

func (s *memoryStore) Set(key string, value []byte) {
	s.mu.Lock()
	s.store[key] = value
	s.mu.Unlock()
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.store, key)
	s.mu.Unlock()
}

func (s *memoryStore) Close() error { return nil }

// --- boltStore -----------------------------------------------------------

const resultBucket = "detection_results"

// boltStore persists results in an embedded bbolt database. The file is
// created at the given path if it does not exist.
type boltStore struct {
	db  *bolt.DB
	log *logger.Logger
}

func newBoltStore(path string, log *logger.Logger) (ResultStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open result store %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(resultBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create result bucket: %w", err)
	}

	log.Infof("result_store", "opened at %s", path)
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		s.log.Warnf("result_store", "get error: %v", err)
		return nil, false
	}
	return value, value != nil
}

func (s *boltStore) Set(key string, value []byte) {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", resultBucket)
		}
		return b.Put([]byte(key), value)
	}); err != nil {
		s.log.Warnf("result_store", "set error: %v", err)
	}
}

func (s *boltStore) Delete(key string) {
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	}); err != nil {
		s.log.Warnf("result_store", "delete error: %v", err)
	}
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
