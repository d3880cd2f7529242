package detect

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

func testLog() *logger.Logger {
	return logger.New("test", "error")
}

// nullStore is a backing store with nothing in it, so eviction behavior of
// the in-memory layer is observable without backing-store fallthrough.
type nullStore struct{}

func (nullStore) Get(string) ([]byte, bool) { return nil, false }
func (nullStore) Set(string, []byte)        {}
func (nullStore) Delete(string)             {}
func (nullStore) Close() error              { return nil }

func TestCacheKey(t *testing.T) {
	k := CacheKey("some text", "hybrid", "en")
	if len(k) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(k))
	}
	if k != CacheKey("some text", "hybrid", "en") {
		t.Error("key is not deterministic")
	}
	if k == CacheKey("other text", "hybrid", "en") {
		t.Error("different text produced the same key")
	}
	if k == CacheKey("some text", "pattern_only", "en") {
		t.Error("different mode produced the same key")
	}
	if k == CacheKey("some text", "hybrid", "nl") {
		t.Error("different language produced the same key")
	}
}

func TestMemoryStore(t *testing.T) {
	s := newMemoryStore()
	if _, ok := s.Get("missing"); ok {
		t.Error("empty store reported a hit")
	}

	s.Set("k", []byte("v"))
	if v, ok := s.Get("k"); !ok || !bytes.Equal(v, []byte("v")) {
		t.Errorf("Get = %q/%v, want v/true", v, ok)
	}

	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Error("deleted key still present")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestBoltStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := NewResultStore(path, 0, testLog())
	if err != nil {
		t.Fatal(err)
	}
	s.Set("k", []byte("payload"))
	if v, ok := s.Get("k"); !ok || !bytes.Equal(v, []byte("payload")) {
		t.Fatalf("Get = %q/%v", v, ok)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Values survive a reopen.
	s, err = NewResultStore(path, 0, testLog())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, ok := s.Get("k"); !ok || !bytes.Equal(v, []byte("payload")) {
		t.Errorf("Get after reopen = %q/%v", v, ok)
	}

	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestS3FIFO_PromotesAccessedEvictsCold(t *testing.T) {
	// capacity 4: sTarget 1, ghost capacity 4.
	s := newS3FIFOStore(nullStore{}, 4, testLog())

	s.Set("a", []byte("1"))
	if _, ok := s.Get("a"); !ok { // freq > 0: survives the S scan
		t.Fatal("fresh key missing")
	}
	s.Set("b", []byte("2"))
	s.Set("c", []byte("3"))
	s.Set("d", []byte("4"))
	s.Set("e", []byte("5")) // exceeds capacity: a promoted, b evicted

	if _, ok := s.Get("a"); !ok {
		t.Error("accessed key was evicted instead of promoted")
	}
	if _, ok := s.Get("b"); ok {
		t.Error("cold key survived eviction")
	}
}

func TestS3FIFO_GhostReadmitsToMain(t *testing.T) {
	s := newS3FIFOStore(nullStore{}, 4, testLog())

	s.Set("a", []byte("1"))
	s.Get("a")
	s.Set("b", []byte("2"))
	s.Set("c", []byte("3"))
	s.Set("d", []byte("4"))
	s.Set("e", []byte("5")) // b cold-evicted into the ghost set

	// Re-admitting a ghost key puts it straight into the main queue, so
	// later probationary churn does not touch it.
	s.Set("b", []byte("2'"))
	s.Set("f", []byte("6"))
	s.Set("g", []byte("7"))

	if v, ok := s.Get("b"); !ok || !bytes.Equal(v, []byte("2'")) {
		t.Errorf("ghost-readmitted key = %q/%v, want 2'/true", v, ok)
	}
}

func TestS3FIFO_UpdatesInPlace(t *testing.T) {
	s := newS3FIFOStore(nullStore{}, 4, testLog())
	s.Set("k", []byte("old"))
	s.Set("k", []byte("new"))

	if v, ok := s.Get("k"); !ok || !bytes.Equal(v, []byte("new")) {
		t.Errorf("Get = %q/%v, want new/true", v, ok)
	}
}

func TestS3FIFO_DeleteRemoves(t *testing.T) {
	s := newS3FIFOStore(nullStore{}, 4, testLog())
	s.Set("k", []byte("v"))
	s.Delete("k")

	if _, ok := s.Get("k"); ok {
		t.Error("deleted key still present")
	}
}
