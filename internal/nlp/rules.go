package nlp

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

const months = `(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan\.?|Feb\.?|Mar\.?|Apr\.?|Jun\.?|Jul\.?|Aug\.?|Sept?\.?|Oct\.?|Nov\.?|Dec\.?)`

type pattern struct {
	label string
	re    *regexp.Regexp
	score float32
}

// Patterns emit the span of capture group 1 when the expression has one.
var patterns = []pattern{
	{"DATE", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), 0.9},
	{"DATE", regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), 0.85},
	{"DATE", regexp.MustCompile(`\b` + months + `\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`), 0.9},
	{"DATE", regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + months + `(?:,?\s+\d{4})?`), 0.9},
	{"DATE", regexp.MustCompile(`\b` + months + `\s+\d{4}\b`), 0.9},
	{"DATE", regexp.MustCompile(`\b(?:Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`), 0.85},
	{"DATE", regexp.MustCompile(`(?i)\b(?:today|yesterday|tomorrow)\b`), 0.8},
	{"DATE", regexp.MustCompile(`(?i)\b(?:in|since|by|from|until|during|of)\s+((?:1[5-9]|20)\d{2})\b`), 0.85},
	{"TIME", regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s?[ap]\.?m\b\.?)?`), 0.9},
	{"TIME", regexp.MustCompile(`(?i)\b\d{1,2}\s?[ap]\.?m\b\.?`), 0.85},
	{"TIME", regexp.MustCompile(`(?i)\b(?:noon|midnight)\b`), 0.7},
	{"MONEY", regexp.MustCompile(`[$€£¥]\s?\d[\d,]*(?:\.\d+)?(?:\s(?:thousand|million|billion|trillion)\b)?`), 0.9},
	{"MONEY", regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\s?(?:(?:thousand|million|billion|trillion)\s)?(?:dollars|euros|pounds|cents|USD|EUR|GBP)\b`), 0.85},
	{"PERCENT", regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:%|percent\b|per cent\b)`), 0.9},
	{"ORDINAL", regexp.MustCompile(`\b\d+(?:st|nd|rd|th)\b`), 0.8},
	{"ORDINAL", regexp.MustCompile(`(?i)\b(?:first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`), 0.6},
	{"CARDINAL", regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\b`), 0.5},
	{"CARDINAL", regexp.MustCompile(`(?i)\b(?:one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|twenty|thirty|forty|fifty|hundred|thousand|million|billion|dozen)\b`), 0.4},
	{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}\b`), 0.95},
	{"URL", regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']*[^\s<>"'.,;:!?)\]]`), 0.95},
}

var patternLabels = []string{"CARDINAL", "DATE", "EMAIL", "MONEY", "ORDINAL", "PERCENT", "TIME", "URL"}

var connectors = map[string]bool{"of": true, "and": true, "&": true, "de": true, "van": true, "von": true, "der": true, "la": true, "du": true, "da": true}

var placePrepositions = map[string]bool{"in": true, "at": true, "from": true, "to": true, "near": true, "across": true, "visited": true}

// RuleOptions selects which rule families run.
type RuleOptions struct {
	Patterns bool // dates, times, money, numbers, emails, URLs
	Names    bool // gazetteer and capitalization heuristics
}

// RuleRecognizer is a deterministic recognizer used alone when no model is
// available and for numeric patterns alongside the model.
type RuleRecognizer struct {
	opts RuleOptions
	idx  *gazetteerIndex
}

// NewRuleRecognizer builds a recognizer. A nil gazetteer disables phrase
// matching but keeps the capitalization heuristics.
func NewRuleRecognizer(g *Gazetteer, opts RuleOptions) *RuleRecognizer {
	if g == nil {
		g = &Gazetteer{}
	}
	return &RuleRecognizer{opts: opts, idx: g.index()}
}

func (r *RuleRecognizer) Labels() []string {
	var out []string
	if r.opts.Patterns {
		out = append(out, patternLabels...)
	}
	if r.opts.Names {
		out = append(out, "GPE", "ORG", "PERSON")
		for _, l := range r.idx.labels {
			if !contains(out, l) {
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (r *RuleRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var spans []Span
	if r.opts.Patterns {
		spans = append(spans, matchPatterns(text)...)
	}
	if r.opts.Names {
		spans = append(spans, r.matchNames(text)...)
	}
	return MergeSpans(spans), nil
}

func matchPatterns(text string) []Span {
	var spans []Span
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			spans = append(spans, Span{Label: p.label, Start: start, End: end, Score: p.score, Source: SourceRules})
		}
	}
	return spans
}

// matchNames runs the gazetteer, then labels remaining capitalized runs.
func (r *RuleRecognizer) matchNames(text string) []Span {
	var words []Token
	for _, t := range Tokenize(text) {
		if !t.IsSpace {
			words = append(words, t)
		}
	}
	covered := make([]bool, len(words))
	var spans []Span

	for i := 0; i < len(words); {
		p, ok := r.idx.match(words, i)
		if !ok {
			i++
			continue
		}
		end := i + len(p.tokens)
		spans = append(spans, Span{Label: p.label, Start: words[i].Start, End: words[end-1].End, Score: 0.85, Source: SourceRules})
		for k := i; k < end; k++ {
			covered[k] = true
		}
		i = end
	}

	for i := 0; i < len(words); {
		if covered[i] || !capitalized(words[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(words) && !covered[j] {
			if capitalized(words[j]) {
				j++
				continue
			}
			if connectors[words[j].Lower] && j+1 < len(words) && !covered[j+1] && capitalized(words[j+1]) && words[j+1].Lower != "the" {
				j += 2
				continue
			}
			break
		}
		if sp, ok := r.classify(words, i, j); ok {
			spans = append(spans, sp)
		}
		i = j
	}
	return spans
}

func capitalized(t Token) bool {
	if t.IsPunct || t.LikeNum || t.Text == "I" {
		return false
	}
	if t.IsTitle {
		return true
	}
	return t.IsUpper && len(t.Text) >= 2 && t.IsAlpha
}

// classify labels the capitalized run words[i:j] or rejects it.
func (r *RuleRecognizer) classify(words []Token, i, j int) (Span, bool) {
	var prev *Token
	if i > 0 {
		prev = &words[i-1]
	}
	titled := prev != nil && r.idx.titles[prev.Text]
	for i < j && (stopWords[words[i].Lower] || r.idx.titles[words[i].Text] || isCalendarWord(words[i].Text)) {
		if r.idx.titles[words[i].Text] {
			titled = true
		}
		prev = &words[i]
		i++
	}
	for j > i && (connectors[words[j-1].Lower] || isCalendarWord(words[j-1].Text)) {
		j--
	}
	if i >= j {
		return Span{}, false
	}

	span := Span{Start: words[i].Start, End: words[j-1].End, Source: SourceRules}
	first, last := words[i], words[j-1]
	n := j - i
	switch {
	case titled:
		span.Label, span.Score = "PERSON", 0.75
	case r.idx.orgSuffixes[last.Text] && n >= 2:
		span.Label, span.Score = "ORG", 0.75
	case r.idx.firstNames[first.Text] && n <= 3:
		span.Label, span.Score = "PERSON", 0.7
	case n == 1 && first.IsUpper && len(first.Text) >= 2:
		span.Label, span.Score = "ORG", 0.55
	case prev != nil && placePrepositions[prev.Lower] && n <= 3:
		span.Label, span.Score = "GPE", 0.5
	case n >= 2 && n <= 3:
		span.Label, span.Score = "PERSON", 0.45
	case n > 3:
		span.Label, span.Score = "ORG", 0.4
	default:
		return Span{}, false
	}
	return span, true
}

func isCalendarWord(s string) bool {
	switch strings.TrimSuffix(s, ".") {
	case "January", "February", "March", "April", "June", "July", "August", "September",
		"October", "November", "December", "Jan", "Feb", "Mar", "Apr", "Jun", "Jul", "Aug",
		"Sep", "Sept", "Oct", "Nov", "Dec",
		"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday":
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
