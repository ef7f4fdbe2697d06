// Package dedupe implements a content- or id-addressed LRU+TTL cache
// giving effective at-most-once processing on top of AMQP's
// at-least-once delivery.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// KeyExtractor derives a dedupe key from a raw delivery body and an
// optional broker messageId. It may return an error, in which case the
// Deduplicator falls back to content hashing.
type KeyExtractor func(body []byte, messageID string) (string, error)

type entry struct {
	result    interface{}
	insertion time.Time
}

// Deduplicator is a capacity-bounded, TTL-expiring LRU cache keyed by
// message identity.
type Deduplicator struct {
	mu        sync.Mutex
	cache     *lru.Cache[string, entry]
	ttl       time.Duration
	extractor KeyExtractor
}

// Options configures capacity, TTL and an optional custom KeyExtractor.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Extractor KeyExtractor
}

// New constructs a Deduplicator. CacheSize defaults to 1000, CacheTTL to
// config.DefaultDedupeTTL's value of 5 minutes if unset.
func New(opts Options) (*Deduplicator, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 1000
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Deduplicator{cache: c, ttl: ttl, extractor: opts.Extractor}, nil
}

// Outcome is the result of Process.
type Outcome struct {
	Duplicate bool
	Result    interface{}
}

// Process derives a key for body/messageID, returning the cached result
// without invoking handler if the key is a live hit. Otherwise it invokes
// handler, caches its result (nil results are cached; only a handler
// error suppresses caching), and returns the fresh result.
func (d *Deduplicator) Process(body []byte, messageID string, handler func() (interface{}, error)) (Outcome, error) {
	key := d.key(body, messageID)

	d.mu.Lock()
	if e, ok := d.cache.Get(key); ok {
		if time.Since(e.insertion) <= d.ttl {
			d.mu.Unlock()
			return Outcome{Duplicate: true, Result: e.result}, nil
		}
		d.cache.Remove(key)
	}
	d.mu.Unlock()

	result, err := handler()
	if err != nil {
		return Outcome{Duplicate: false}, err
	}

	d.mu.Lock()
	d.cache.Add(key, entry{result: result, insertion: time.Now()})
	d.mu.Unlock()
	return Outcome{Duplicate: false, Result: result}, nil
}

func (d *Deduplicator) key(body []byte, messageID string) string {
	if d.extractor != nil {
		if k, err := d.extractor(body, messageID); err == nil {
			return k
		}
	}
	if messageID != "" {
		return messageID
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Len reports the current number of cached entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Len()
}

// Purge clears every cached entry.
func (d *Deduplicator) Purge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Purge()
}
