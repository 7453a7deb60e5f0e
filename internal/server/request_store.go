package server

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
)

// analysisStore caches processed documents keyed by model and text, so
// re-rendering the same input does not run the model again.
type analysisStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	data       map[string]analysisEntry
	now        func() time.Time
}

type analysisEntry struct {
	doc       *nlp.Doc
	storedAt  time.Time
	expiresAt time.Time
}

func newAnalysisStore(ttl time.Duration, maxEntries int) *analysisStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &analysisStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		data:       make(map[string]analysisEntry),
		now:        time.Now,
	}
}

func analysisKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached doc. Callers must treat it as read-only.
func (s *analysisStore) Get(key string) (*nlp.Doc, bool) {
	if s == nil || s.maxEntries <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.data, key)
		return nil, false
	}
	return entry.doc, true
}

func (s *analysisStore) Put(key string, doc *nlp.Doc) {
	if s == nil || s.maxEntries <= 0 || doc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		s.evictOldestLocked()
	}
	now := s.now()
	s.data[key] = analysisEntry{doc: doc, storedAt: now, expiresAt: now.Add(s.ttl)}
}

func (s *analysisStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *analysisStore) cleanupLocked() {
	now := s.now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}

func (s *analysisStore) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, v := range s.data {
		if oldestKey == "" || v.storedAt.Before(oldest) {
			oldestKey, oldest = k, v.storedAt
		}
	}
	delete(s.data, oldestKey)
}
