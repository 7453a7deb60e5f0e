package server

import (
	"testing"
	"time"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
)

func TestAnalysisStoreTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newAnalysisStore(time.Minute, 4)
	store.now = func() time.Time { return now }

	key := analysisKey("m", "hello")
	store.Put(key, nlp.NewDoc("hello"))
	if _, ok := store.Get(key); !ok {
		t.Fatal("expected cached doc")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(key); ok {
		t.Fatal("expected entry to expire")
	}
	if store.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", store.Len())
	}
}

func TestAnalysisStoreEvictsOldest(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newAnalysisStore(time.Hour, 2)
	store.now = func() time.Time { return now }

	store.Put("a", nlp.NewDoc("a"))
	now = now.Add(time.Second)
	store.Put("b", nlp.NewDoc("b"))
	now = now.Add(time.Second)
	store.Put("c", nlp.NewDoc("c"))

	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	if _, ok := store.Get("a"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := store.Get("c"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestAnalysisStoreDisabled(t *testing.T) {
	store := newAnalysisStore(time.Minute, 0)
	store.Put("a", nlp.NewDoc("a"))
	if _, ok := store.Get("a"); ok {
		t.Fatal("store with no capacity must not cache")
	}
}

func TestAnalysisKeySeparatesModel(t *testing.T) {
	if analysisKey("ab", "c") == analysisKey("a", "bc") {
		t.Fatal("keys must not collide across the model/text boundary")
	}
	if analysisKey("m", "x") != analysisKey("m", "x") {
		t.Fatal("key must be deterministic")
	}
}
