package nlp

import (
	"sort"
	"strings"
)

// Span is a labelled byte range of Doc.Text.
type Span struct {
	Label  string  `json:"label"`
	Start  int     `json:"start_char"`
	End    int     `json:"end_char"`
	Text   string  `json:"text"`
	Score  float32 `json:"score,omitempty"`
	Source string  `json:"source,omitempty"`

	// Token range [TokenStart, TokenEnd) once aligned by SetEnts.
	TokenStart int `json:"start"`
	TokenEnd   int `json:"end"`
}

// Token carries lexical attributes for one token of a Doc.
type Token struct {
	Index      int    `json:"i"`
	Text       string `json:"text"`
	Start      int    `json:"idx"`
	End        int    `json:"end"`
	Whitespace string `json:"whitespace"`

	Lower  string `json:"lower"`
	Norm   string `json:"norm"`
	Shape  string `json:"shape"`
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`

	IsAlpha     bool `json:"is_alpha"`
	IsASCII     bool `json:"is_ascii"`
	IsDigit     bool `json:"is_digit"`
	IsPunct     bool `json:"is_punct"`
	IsSpace     bool `json:"is_space"`
	IsTitle     bool `json:"is_title"`
	IsUpper     bool `json:"is_upper"`
	IsLower     bool `json:"is_lower"`
	IsStop      bool `json:"is_stop"`
	LikeNum     bool `json:"like_num"`
	LikeURL     bool `json:"like_url"`
	LikeEmail   bool `json:"like_email"`
	IsSentStart bool `json:"is_sent_start"`

	EntIOB  string `json:"ent_iob"`
	EntType string `json:"ent_type"`
}

// Doc is the result of processing one text.
type Doc struct {
	Text   string  `json:"text"`
	Tokens []Token `json:"tokens"`
	Ents   []Span  `json:"ents"`
	Model  string  `json:"model,omitempty"`

	// Degraded is set when the model failed and rules stood in for it.
	Degraded bool `json:"degraded,omitempty"`
}

// NewDoc tokenizes text. Entities are empty until SetEnts runs.
func NewDoc(text string) *Doc {
	d := &Doc{Text: text, Tokens: Tokenize(text)}
	for i := range d.Tokens {
		d.Tokens[i].EntIOB = "O"
	}
	return d
}

// SetEnts aligns spans to token boundaries and replaces the Doc's entities.
// Spans are clamped to the text; empty or whitespace-only spans are dropped.
// Overlaps resolve longest first, then earliest, then highest score.
func (d *Doc) SetEnts(spans []Span) {
	for i := range d.Tokens {
		d.Tokens[i].EntIOB = "O"
		d.Tokens[i].EntType = ""
	}
	d.Ents = nil

	candidates := make([]Span, 0, len(spans))
	for _, sp := range spans {
		aligned, ok := d.align(sp)
		if ok {
			candidates = append(candidates, aligned)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		li := candidates[i].TokenEnd - candidates[i].TokenStart
		lj := candidates[j].TokenEnd - candidates[j].TokenStart
		if li != lj {
			return li > lj
		}
		if candidates[i].TokenStart != candidates[j].TokenStart {
			return candidates[i].TokenStart < candidates[j].TokenStart
		}
		return candidates[i].Score > candidates[j].Score
	})

	taken := make([]bool, len(d.Tokens))
	var kept []Span
	for _, sp := range candidates {
		free := true
		for t := sp.TokenStart; t < sp.TokenEnd; t++ {
			if taken[t] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for t := sp.TokenStart; t < sp.TokenEnd; t++ {
			taken[t] = true
		}
		kept = append(kept, sp)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].TokenStart < kept[j].TokenStart })

	for _, sp := range kept {
		for t := sp.TokenStart; t < sp.TokenEnd; t++ {
			d.Tokens[t].EntType = sp.Label
			if t == sp.TokenStart {
				d.Tokens[t].EntIOB = "B"
			} else {
				d.Tokens[t].EntIOB = "I"
			}
		}
	}
	d.Ents = kept
}

// align expands sp to cover whole non-space tokens.
func (d *Doc) align(sp Span) (Span, bool) {
	label := strings.TrimSpace(sp.Label)
	if label == "" {
		return Span{}, false
	}
	start := max(sp.Start, 0)
	end := min(sp.End, len(d.Text))
	if start >= end || strings.TrimSpace(d.Text[start:end]) == "" {
		return Span{}, false
	}

	first, last := -1, -1
	for i, tok := range d.Tokens {
		if tok.IsSpace {
			continue
		}
		if tok.End > start && tok.Start < end {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return Span{}, false
	}
	sp.Label = strings.ToUpper(label)
	sp.TokenStart = first
	sp.TokenEnd = last + 1
	sp.Start = d.Tokens[first].Start
	sp.End = d.Tokens[last].End
	sp.Text = d.Text[sp.Start:sp.End]
	return sp, true
}

// Labels returns the distinct entity labels present, in first-seen order.
func (d *Doc) Labels() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range d.Ents {
		if !seen[e.Label] {
			seen[e.Label] = true
			out = append(out, e.Label)
		}
	}
	return out
}
