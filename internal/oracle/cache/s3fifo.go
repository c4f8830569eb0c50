package cache

// s3fifoStore wraps a Store with an in-memory S3-FIFO eviction layer,
// bounding both the hot in-memory footprint and the backing store size.
//
// S3-FIFO (Yang et al., 2023) uses two FIFO queues and a bounded ghost set:
//
//   - S (small, ~10% of capacity): probationary queue. New keys land here.
//   - M (main, ~90% of capacity): keys promoted from S after at least one hit.
//   - G (ghost): ring buffer of keys recently evicted from S, bounded to
//     2 × sTarget. A key found in G on insert goes straight to M.
//
// Per-object state is a saturating frequency counter (max 3), incremented on
// every hit and reset on promotion.
//
//	S head, freq > 0  → promote to M tail; if M is over target, evict M head.
//	S head, freq == 0 → drop from memory, add to G, delete from backing store.
//	M head            → drop from memory, delete from backing store (no ghost).
//
// On restart the in-memory layer is cold; reads fall back to the backing
// store and re-warm the hot set.
//
// All public methods take one mutex for in-memory state. Backing store I/O
// runs without holding it.

import (
	"container/list"
	"sync"

	"clinical-deid/internal/logger"
)

type s3fifoEntry struct {
	value string
	freq  uint8         // saturating counter in [0, 3]
	elem  *list.Element // back-pointer into sQueue or mQueue
	inM   bool
}

type s3fifoStore struct {
	mu sync.Mutex

	capacity int // S + M max items
	sTarget  int
	ghostCap int

	entries map[string]*s3fifoEntry

	// Each element Value is a string key.
	sQueue *list.List
	mQueue *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing Store
}

// NewS3FIFO returns a Store that applies S3-FIFO eviction in front of
// backing. capacity is the maximum number of items kept; values < 2 are
// clamped to 2.
func NewS3FIFO(backing Store, capacity int, log *logger.Logger) Store {
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
	log.Debugf("cache_open", "S3-FIFO capacity=%d sTarget=%d ghostCap=%d", capacity, sTarget, ghostCap)
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

// Get returns the value for key. A memory miss consults the backing store
// and re-warms the entry on a hit there.
func (c *s3fifoStore) Get(key string) (string, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.freq < 3 {
			e.freq++
		}
		v := e.value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	value, ok := c.backing.Get(key)
	if !ok {
		return "", false
	}
	evicted := c.insert(key, value)
	c.deleteBacking(evicted)
	return value, true
}

// Set stores key → value in memory and in the backing store. An existing
// key keeps its queue position.
func (c *s3fifoStore) Set(key, value string) {
	evicted := c.insert(key, value)
	c.backing.Set(key, value)
	c.deleteBacking(evicted)
}

// Delete removes key from memory and from the backing store.
func (c *s3fifoStore) Delete(key string) {
	c.mu.Lock()
	c.removeFromMemory(key)
	c.mu.Unlock()
	c.backing.Delete(key)
}

// Close closes the backing store. In-memory state is discarded.
func (c *s3fifoStore) Close() error {
	return c.backing.Close()
}

func (c *s3fifoStore) deleteBacking(keys []string) {
	for _, k := range keys {
		c.backing.Delete(k)
	}
}

// insert performs the in-memory insert or update and returns the keys it
// evicted, which the caller removes from the backing store.
func (c *s3fifoStore) insert(key, value string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		return nil
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &s3fifoEntry{value: value, elem: elem, inM: inM}

	var evicted []string
	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		evicted = append(evicted, c.evictOne()...)
	}
	return evicted
}

// Must be called with c.mu held.
func (c *s3fifoStore) evictOne() []string {
	if c.sQueue.Len() > 0 {
		return c.evictFromS()
	}
	return c.evictFromM()
}

// Must be called with c.mu held.
func (c *s3fifoStore) evictFromS() []string {
	front := c.sQueue.Front()
	if front == nil {
		return nil
	}
	c.sQueue.Remove(front)
	key, ok := front.Value.(string)
	if !ok {
		return nil
	}
	e, ok := c.entries[key]
	if !ok {
		return nil
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		if c.mQueue.Len() > c.capacity-c.sTarget {
			return c.evictFromM()
		}
		return nil
	}
	delete(c.entries, key)
	c.ghostAdd(key)
	return []string{key}
}

// Must be called with c.mu held.
func (c *s3fifoStore) evictFromM() []string {
	front := c.mQueue.Front()
	if front == nil {
		return nil
	}
	c.mQueue.Remove(front)
	key, ok := front.Value.(string)
	if !ok {
		return nil
	}
	delete(c.entries, key)
	return []string{key}
}

// Must be called with c.mu held.
func (c *s3fifoStore) removeFromMemory(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

// Must be called with c.mu held.
func (c *s3fifoStore) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

// ghostAdd inserts key into the ring, dropping the oldest ghost when full.
// Must be called with c.mu held.
func (c *s3fifoStore) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
