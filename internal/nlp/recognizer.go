package nlp

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
)

// Span sources.
const (
	SourceRules = "rules"
	SourceModel = "onnx"
)

// Recognizer finds entity spans in raw text.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Span, error)
	Labels() []string
}

// HybridRecognizer runs deterministic patterns alongside the ML model. When
// the model fails or times out, Fallback replaces it for that call.
type HybridRecognizer struct {
	Patterns Recognizer
	ML       Recognizer
	Fallback Recognizer
	Timeout  time.Duration
	MinScore float32
}

func (h *HybridRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	var all []Span
	if h.Patterns != nil {
		spans, err := h.Patterns.Recognize(ctx, text)
		if err != nil {
			return nil, err
		}
		all = append(all, spans...)
	}

	mlSpans, err := h.runML(ctx, text)
	switch {
	case err == nil:
		kept := 0
		for _, sp := range mlSpans {
			if sp.Score >= h.MinScore {
				all = append(all, sp)
				kept++
			}
		}
		if len(mlSpans) > 0 && kept == 0 {
			redact.Logf("nlp: model found %d entities but all were below min_score=%.2f", len(mlSpans), h.MinScore)
		}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		noteFallback(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			redact.Logf("nlp: model inference timed out after %s, using rules", h.Timeout)
		} else {
			redact.Logf("nlp: model inference failed: %v, using rules", err)
		}
		if h.Fallback != nil {
			spans, ferr := h.Fallback.Recognize(ctx, text)
			if ferr != nil {
				return nil, ferr
			}
			all = append(all, spans...)
		}
	}
	return MergeSpans(all), nil
}

type fallbackKey struct{}

// withFallbackNote returns a context in which HybridRecognizer records that
// the model was replaced by its fallback.
func withFallbackNote(ctx context.Context) (context.Context, *bool) {
	used := new(bool)
	return context.WithValue(ctx, fallbackKey{}, used), used
}

func noteFallback(ctx context.Context) {
	if used, ok := ctx.Value(fallbackKey{}).(*bool); ok {
		*used = true
	}
}

func (h *HybridRecognizer) runML(ctx context.Context, text string) ([]Span, error) {
	if h.ML == nil {
		return nil, errors.New("no model recognizer")
	}
	if h.Timeout <= 0 {
		return h.ML.Recognize(ctx, text)
	}
	mlCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	return h.ML.Recognize(mlCtx, text)
}

// Labels is the union of the underlying recognizers' labels.
func (h *HybridRecognizer) Labels() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range []Recognizer{h.ML, h.Patterns, h.Fallback} {
		if r == nil {
			continue
		}
		for _, l := range r.Labels() {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

// MergeSpans drops overlaps and orders the survivors by start. Spans are
// taken in preference order (longer, then rule patterns over the model, then
// score) and each is kept unless it overlaps one already kept.
func MergeSpans(all []Span) []Span {
	if len(all) == 0 {
		return nil
	}
	ranked := append([]Span(nil), all...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if prefer(ranked[i], ranked[j]) {
			return true
		}
		if prefer(ranked[j], ranked[i]) {
			return false
		}
		return ranked[i].Start < ranked[j].Start
	})

	kept := make([]Span, 0, len(ranked))
	for _, sp := range ranked {
		if sp.End <= sp.Start {
			continue
		}
		free := true
		for _, k := range kept {
			if sp.Start < k.End && k.Start < sp.End {
				free = false
				break
			}
		}
		if free {
			kept = append(kept, sp)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func prefer(a, b Span) bool {
	la, lb := a.End-a.Start, b.End-b.Start
	if la != lb {
		return la > lb
	}
	if a.Source == SourceRules && b.Source != SourceRules {
		return true
	}
	if a.Source != SourceRules && b.Source == SourceRules {
		return false
	}
	return a.Score > b.Score
}
