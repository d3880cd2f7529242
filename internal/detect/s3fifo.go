// s3fifoStore wraps a ResultStore with an in-memory S3-FIFO eviction
// layer, bounding both the hot in-memory footprint and the on-disk store
// size.
//
// S3-FIFO ("Simple, Scalable, FIFO-based cache eviction", Yang et al.,
// 2023) uses two FIFO queues and a bounded ghost set:
//
//   - S (small, ~10% of capacity): probationary queue for new keys.
//   - M (main, ~90% of capacity): protected queue. Keys promoted from S
//     after at least one access land here.
//   - G (ghost): a circular-buffer set of keys recently evicted from S,
//     bounded to 2x sTarget. A key found in G on insert bypasses S and
//     goes directly to M.
//
// Per-object state is a saturating frequency counter (uint8, max 3),
// incremented on every Get hit and reset on M promotion. Eviction from S
// promotes hot keys to M and fully evicts cold ones (recording them in G);
// eviction from M is a full eviction without a ghost record. Evicted keys
// are also deleted from the backing store so disk size stays bounded. On
// restart the in-memory layer is cold; reads fall back to the backing
// store and re-warm the hot set organically.
//
// All public methods take a single mutex for in-memory state; backing
// store I/O happens outside the lock.
package detect

import (
	"container/list"
	"sync"

	"github.com/KingOfTheAce2/Bridge-for-Expertise-Audit-and-Research/internal/logger"
)

type s3fifoEntry struct {
	value []byte
	freq  uint8         // saturating counter in [0, 3]
	elem  *list.Element // back-pointer into sQueue or mQueue
	inM   bool
}

type s3fifoStore struct {
	mu sync.Mutex

	capacity int // S + M max items
	sTarget  int // desired S queue size (~10%)
	ghostCap int

	entries map[string]*s3fifoEntry

	// FIFO queues; each element Value is a string key.
	sQueue *list.List
	mQueue *list.List

	// Ghost: bounded circular buffer.
	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing ResultStore
}

// newS3FIFOStore returns a ResultStore applying S3-FIFO eviction in front
// of backing. capacity is the maximum number of resident items; values < 2
// are clamped to 2.
func newS3FIFOStore(backing ResultStore, capacity int, log *logger.Logger) ResultStore {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	log.Debugf("s3fifo", "capacity=%d s_target=%d ghost_cap=%d", capacity, sTarget, ghostCap)
	return &s3fifoStore{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*s3fifoEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
	}
}

// Get returns the cached value for key. A memory hit increments the freq
// counter; a memory miss consults the backing store and re-warms hits into
// memory.
func (s *s3fifoStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		if e.freq < 3 {
			e.freq++
		}
		v := e.value
		s.mu.Unlock()
		return v, true
	}
	s.mu.Unlock()

	value, ok := s.backing.Get(key)
	if !ok {
		return nil, false
	}
	s.insert(key, value)
	return value, true
}

// Set stores key in memory and in the backing store.
func (s *s3fifoStore) Set(key string, value []byte) {
	s.insert(key, value)
	s.backing.Set(key, value)
}

// Delete removes key from memory and from the backing store.
func (s *s3fifoStore) Delete(key string) {
	s.mu.Lock()
	s.removeFromMemory(key)
	s.mu.Unlock()
	s.backing.Delete(key)
}

// Close closes the backing store. In-memory state is discarded.
func (s *s3fifoStore) Close() error {
	return s.backing.Close()
}

// insert performs the in-memory S3-FIFO insert/update. An existing key is
// updated in place without changing its queue position.
func (s *s3fifoStore) insert(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.value = value
		return
	}

	// New key: insert into M if key is in ghost, S otherwise.
	inM := s.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = s.mQueue.PushBack(key)
	} else {
		elem = s.sQueue.PushBack(key)
	}
	s.entries[key] = &s3fifoEntry{value: value, elem: elem, inM: inM}

	for s.sQueue.Len()+s.mQueue.Len() > s.capacity {
		s.evictOne()
	}
}

// evictOne removes one entry, following the S3-FIFO policy.
// Must be called with s.mu held.
func (s *s3fifoStore) evictOne() {
	if s.sQueue.Len() > 0 {
		s.evictFromS()
		return
	}
	s.evictFromM()
}

// evictFromS pops the oldest entry from S and either promotes it to M or
// evicts it fully. Must be called with s.mu held.
func (s *s3fifoStore) evictFromS() {
	front := s.sQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		s.sQueue.Remove(front)
		return
	}
	s.sQueue.Remove(front)

	e, ok := s.entries[key]
	if !ok {
		return // stale element
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = s.mQueue.PushBack(key)
		mTarget := s.capacity - s.sTarget
		if s.mQueue.Len() > mTarget {
			s.evictFromM()
		}
	} else {
		delete(s.entries, key)
		s.ghostAdd(key)
		go s.backing.Delete(key) // async: avoid blocking the hot path
	}
}

// evictFromM pops the oldest entry from M and evicts it fully. M evictions
// do not add to the ghost set. Must be called with s.mu held.
func (s *s3fifoStore) evictFromM() {
	front := s.mQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		s.mQueue.Remove(front)
		return
	}
	s.mQueue.Remove(front)
	delete(s.entries, key)
	go s.backing.Delete(key) // async: avoid blocking the hot path
}

// removeFromMemory removes key from its queue and from the entries map.
// Must be called with s.mu held.
func (s *s3fifoStore) removeFromMemory(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.inM {
		s.mQueue.Remove(e.elem)
	} else {
		s.sQueue.Remove(e.elem)
	}
	delete(s.entries, key)
}

// ghostContains reports whether key is in the ghost set.
// Must be called with s.mu held.
func (s *s3fifoStore) ghostContains(key string) bool {
	_, ok := s.ghostSet[key]
	return ok
}

// ghostAdd inserts key into the bounded circular ghost buffer, evicting
// the oldest ghost entry when full. Must be called with s.mu held.
func (s *s3fifoStore) ghostAdd(key string) {
	if _, exists := s.ghostSet[key]; exists {
		return
	}

	if s.ghostCount == s.ghostCap {
		oldest := s.ghostBuf[s.ghostHead]
		delete(s.ghostSet, oldest)
		s.ghostHead = (s.ghostHead + 1) % s.ghostCap
		s.ghostCount--
	}

	writeIdx := (s.ghostHead + s.ghostCount) % s.ghostCap
	s.ghostBuf[writeIdx] = key
	s.ghostSet[key] = struct{}{}
	s.ghostCount++
}
