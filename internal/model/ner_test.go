package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntitiesFromTaggedMergesWordsAndSubwords(t *testing.T) {
	text := "Angela Merkel visited New York"
	at := func(s string) (int, int) {
		i := strings.Index(text, s)
		return i, i + len(s)
	}
	piece := func(s string, sub bool) Piece {
		start, end := at(s)
		return Piece{Start: start, End: end, Sub: sub}
	}
	tagged := []taggedPiece{
		{piece: piece("Angela", false), label: "B-PER", score: 0.9},
		{piece: piece("Mer", false), label: "I-PER", score: 0.8},
		{piece: piece("kel", true), label: "O", score: 0.5},
		{piece: piece("visited", false), label: "O", score: 0.99},
		{piece: piece("New", false), label: "B-LOC", score: 0.9},
		{piece: piece("York", false), label: "I-LOC", score: 0.7},
	}

	got := entitiesFromTagged(tagged)
	if len(got) != 2 {
		t.Fatalf("expected 2 entities, got %+v", got)
	}
	if got[0].Label != "PERSON" || text[got[0].Start:got[0].End] != "Angela Merkel" {
		t.Fatalf("unexpected first entity %+v", got[0])
	}
	if math.Abs(float64(got[0].Score)-0.85) > 1e-6 {
		t.Fatalf("expected mean score 0.85, got %v", got[0].Score)
	}
	if got[1].Label != "LOC" || text[got[1].Start:got[1].End] != "New York" {
		t.Fatalf("unexpected second entity %+v", got[1])
	}
}

func TestEntitiesFromTaggedBeginSplitsAndOrphanSubwords(t *testing.T) {
	tagged := []taggedPiece{
		{piece: Piece{Start: 0, End: 2, Sub: true}, label: "I-ORG", score: 0.9},
		{piece: Piece{Start: 3, End: 6}, label: "B-ORG", score: 0.9},
		{piece: Piece{Start: 7, End: 9}, label: "B-ORG", score: 0.9},
		{piece: Piece{Start: 10, End: 10}, label: "I-ORG", score: 0.9},
	}
	got := entitiesFromTagged(tagged)
	if len(got) != 2 {
		t.Fatalf("expected two separate ORG entities, got %+v", got)
	}
	if got[0].Start != 3 || got[1].Start != 7 || got[1].End != 9 {
		t.Fatalf("unexpected spans %+v", got)
	}
}

func TestMergeEntitiesOverlapSameLabel(t *testing.T) {
	in := []Entity{
		{Label: "ORG", Start: 10, End: 15, Score: 0.6},
		{Label: "ORG", Start: 5, End: 12, Score: 0.9},
		{Label: "PERSON", Start: 20, End: 25},
	}
	out := mergeEntities(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entities, got %+v", out)
	}
	if out[0].Start != 5 || out[0].End != 15 || out[0].Score != 0.9 {
		t.Fatalf("unexpected merged entity %+v", out[0])
	}
}

func TestSplitWindowsKeepsWordsTogether(t *testing.T) {
	pieces := []Piece{{}, {Sub: true}, {Sub: true}, {}, {Sub: true}, {}}
	windows := splitWindows(pieces, 4)
	if len(windows) != 2 || len(windows[0]) != 3 || len(windows[1]) != 3 {
		t.Fatalf("unexpected windows %v", windows)
	}

	all := []Piece{{}, {Sub: true}, {Sub: true}, {Sub: true}}
	windows = splitWindows(all, 2)
	total := 0
	for _, w := range windows {
		if len(w) > 2 {
			t.Fatalf("window exceeds size: %v", w)
		}
		total += len(w)
	}
	if total != len(all) {
		t.Fatalf("windows lost pieces: %v", windows)
	}
}

func TestBuildOutputShapeFillsDynamicDims(t *testing.T) {
	shape := buildOutputShape([]int64{-1, -1, 9}, 128, 9)
	want := []int64{1, 128, 9}
	for i := range want {
		if shape[i] != want[i] {
			t.Fatalf("shape=%v want %v", shape, want)
		}
	}
	shape = buildOutputShape(nil, 64, 5)
	if len(shape) != 3 || shape[1] != 64 || shape[2] != 5 {
		t.Fatalf("default shape=%v", shape)
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float32{1, 2, 3})
	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("sum=%v", sum)
	}
	if probs[2] <= probs[1] || probs[1] <= probs[0] {
		t.Fatalf("softmax must preserve order: %v", probs)
	}
}

func TestLoadLabelMetaFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"id2label":{"0":"O","1":"B-PER","2":"I-PER","3":"B-LOC","4":"I-LOC"},"type_vocab_size":2}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := loadLabelMeta(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(meta.Labels) != 5 || meta.Labels[1] != "B-PER" || meta.NumLabels != 5 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if !meta.RequiresTokenType {
		t.Fatal("expected token type ids to be required")
	}
	if got := entityLabels(meta.Labels); strings.Join(got, ",") != "LOC,PERSON" {
		t.Fatalf("entity labels=%v", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "label_map.json"), []byte(`["O","B-ORG","I-ORG"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err = loadLabelMeta(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Labels) != 3 || meta.Labels[2] != "I-ORG" {
		t.Fatalf("label_map.json should win, got %+v", meta.Labels)
	}
}

func TestLoadWithoutExportIsUnavailable(t *testing.T) {
	for _, dir := range []string{"", t.TempDir()} {
		_, err := Load(dir, Options{})
		if !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("dir %q: expected ErrModelUnavailable, got %v", dir, err)
		}
	}
}

func TestRecognizeWithRealModel(t *testing.T) {
	dir := strings.TrimSpace(os.Getenv("NERAPP_TEST_MODEL_DIR"))
	if dir == "" {
		t.Skip("NERAPP_TEST_MODEL_DIR not set")
	}
	n, err := Load(dir, Options{SeqLen: 128, PoolSize: 2})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer n.Close()

	text := "Barack Obama was born in Hawaii."
	ents, err := n.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(ents) == 0 {
		t.Fatal("expected at least one entity")
	}
	for _, e := range ents {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			t.Fatalf("entity out of bounds: %+v", e)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.Recognize(ctx, text); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
