package nlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	spans  []Span
	err    error
	block  bool
	labels []string
	calls  int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Span, len(f.spans))
	copy(out, f.spans)
	return out, nil
}

func (f *fakeRecognizer) Labels() []string { return f.labels }

func TestHybridMergesPatternsAndModel(t *testing.T) {
	h := &HybridRecognizer{
		Patterns: &fakeRecognizer{spans: []Span{{Label: "DATE", Start: 20, End: 24, Source: SourceRules}}},
		ML: &fakeRecognizer{spans: []Span{
			{Label: "PERSON", Start: 0, End: 5, Score: 0.9, Source: SourceModel},
			{Label: "CARDINAL", Start: 20, End: 24, Score: 0.99, Source: SourceModel},
			{Label: "ORG", Start: 10, End: 14, Score: 0.3, Source: SourceModel},
		}},
		Fallback: &fakeRecognizer{spans: []Span{{Label: "ORG", Start: 10, End: 14}}},
		MinScore: 0.5,
	}
	spans, err := h.Recognize(context.Background(), "ignored")
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "PERSON", spans[0].Label)
	assert.Equal(t, "DATE", spans[1].Label)
	assert.Equal(t, 0, h.Fallback.(*fakeRecognizer).calls)
}

func TestHybridFallsBackOnModelError(t *testing.T) {
	fallback := &fakeRecognizer{spans: []Span{{Label: "GPE", Start: 0, End: 5, Source: SourceRules}}}
	h := &HybridRecognizer{
		ML:       &fakeRecognizer{err: errors.New("session exploded")},
		Fallback: fallback,
	}
	spans, err := h.Recognize(context.Background(), "Paris")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "GPE", spans[0].Label)
	assert.Equal(t, 1, fallback.calls)
}

func TestHybridFallsBackOnTimeout(t *testing.T) {
	fallback := &fakeRecognizer{spans: []Span{{Label: "GPE", Start: 0, End: 5}}}
	h := &HybridRecognizer{
		ML:       &fakeRecognizer{block: true},
		Fallback: fallback,
		Timeout:  10 * time.Millisecond,
	}
	spans, err := h.Recognize(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Len(t, spans, 1)
	assert.Equal(t, 1, fallback.calls)
}

func TestHybridReturnsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &fakeRecognizer{}
	h := &HybridRecognizer{ML: &fakeRecognizer{block: true}, Fallback: fallback}
	_, err := h.Recognize(ctx, "Paris")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fallback.calls)
}

func TestHybridPatternErrorIsReturned(t *testing.T) {
	h := &HybridRecognizer{
		Patterns: &fakeRecognizer{err: errors.New("bad pattern")},
		ML:       &fakeRecognizer{},
	}
	_, err := h.Recognize(context.Background(), "x")
	require.Error(t, err)
}

func TestHybridLabelsUnion(t *testing.T) {
	h := &HybridRecognizer{
		Patterns: &fakeRecognizer{labels: []string{"DATE", "MONEY"}},
		ML:       &fakeRecognizer{labels: []string{"PERSON", "ORG", "LOC", "MISC"}},
		Fallback: &fakeRecognizer{labels: []string{"PERSON", "DATE", "GPE"}},
	}
	assert.Equal(t, []string{"DATE", "GPE", "LOC", "MISC", "MONEY", "ORG", "PERSON"}, h.Labels())
}

func TestMergeSpans(t *testing.T) {
	assert.Nil(t, MergeSpans(nil))

	got := MergeSpans([]Span{
		{Label: "B", Start: 10, End: 12, Source: SourceModel, Score: 0.9},
		{Label: "A", Start: 0, End: 4, Source: SourceModel, Score: 0.9},
		{Label: "RULE", Start: 10, End: 12, Source: SourceRules, Score: 0.5},
		{Label: "LONG", Start: 2, End: 9, Source: SourceModel, Score: 0.1},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "LONG", got[0].Label)
	assert.Equal(t, "RULE", got[1].Label)

	// B loses to A but does not overlap C, which displaces A.
	got = MergeSpans([]Span{
		{Label: "A", Start: 0, End: 10},
		{Label: "B", Start: 1, End: 3},
		{Label: "C", Start: 5, End: 20},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Label)
	assert.Equal(t, "C", got[1].Label)

	input := []Span{{Label: "X", Start: 4, End: 6}, {Label: "Y", Start: 0, End: 2}}
	got = MergeSpans(input)
	assert.Equal(t, []string{"Y", "X"}, []string{got[0].Label, got[1].Label})
	assert.Equal(t, "X", input[0].Label, "input order must be left alone")
}
