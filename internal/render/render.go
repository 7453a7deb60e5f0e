// Package render turns processed documents into the token table and the
// inline entity markup shown by the web UI.
package render

import (
	"fmt"
	"html/template"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
)

// DefaultTokenAttrs are the columns shown when none are selected.
var DefaultTokenAttrs = []string{"idx", "text", "lower", "shape", "is_alpha", "is_stop", "ent_type"}

// AllTokenAttrs lists every column Tokens understands, in display order.
var AllTokenAttrs = []string{
	"idx", "text", "whitespace", "lower", "norm", "shape", "prefix", "suffix",
	"is_alpha", "is_ascii", "is_digit", "is_punct", "is_space", "is_title",
	"is_upper", "is_lower", "is_stop", "like_num", "like_url", "like_email",
	"is_sent_start", "ent_iob", "ent_type",
}

var tokenAttrs = map[string]func(nlp.Token) string{
	"i":             func(t nlp.Token) string { return strconv.Itoa(t.Index) },
	"idx":           func(t nlp.Token) string { return strconv.Itoa(t.Start) },
	"text":          func(t nlp.Token) string { return t.Text },
	"whitespace":    func(t nlp.Token) string { return t.Whitespace },
	"lower":         func(t nlp.Token) string { return t.Lower },
	"norm":          func(t nlp.Token) string { return t.Norm },
	"shape":         func(t nlp.Token) string { return t.Shape },
	"prefix":        func(t nlp.Token) string { return t.Prefix },
	"suffix":        func(t nlp.Token) string { return t.Suffix },
	"is_alpha":      func(t nlp.Token) string { return strconv.FormatBool(t.IsAlpha) },
	"is_ascii":      func(t nlp.Token) string { return strconv.FormatBool(t.IsASCII) },
	"is_digit":      func(t nlp.Token) string { return strconv.FormatBool(t.IsDigit) },
	"is_punct":      func(t nlp.Token) string { return strconv.FormatBool(t.IsPunct) },
	"is_space":      func(t nlp.Token) string { return strconv.FormatBool(t.IsSpace) },
	"is_title":      func(t nlp.Token) string { return strconv.FormatBool(t.IsTitle) },
	"is_upper":      func(t nlp.Token) string { return strconv.FormatBool(t.IsUpper) },
	"is_lower":      func(t nlp.Token) string { return strconv.FormatBool(t.IsLower) },
	"is_stop":       func(t nlp.Token) string { return strconv.FormatBool(t.IsStop) },
	"like_num":      func(t nlp.Token) string { return strconv.FormatBool(t.LikeNum) },
	"like_url":      func(t nlp.Token) string { return strconv.FormatBool(t.LikeURL) },
	"like_email":    func(t nlp.Token) string { return strconv.FormatBool(t.LikeEmail) },
	"is_sent_start": func(t nlp.Token) string { return strconv.FormatBool(t.IsSentStart) },
	"ent_iob":       func(t nlp.Token) string { return t.EntIOB },
	"ent_type":      func(t nlp.Token) string { return t.EntType },
}

// TokenTable is one row per token, one column per attribute. Cells are raw
// text; templates escape them.
type TokenTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Tokens builds the attribute table. Unknown attributes are skipped and an
// empty selection uses DefaultTokenAttrs.
func Tokens(doc *nlp.Doc, attrs []string) TokenTable {
	var cols []string
	seen := map[string]bool{}
	for _, a := range attrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if _, ok := tokenAttrs[a]; ok && !seen[a] {
			seen[a] = true
			cols = append(cols, a)
		}
	}
	if len(cols) == 0 {
		cols = append(cols, DefaultTokenAttrs...)
	}
	table := TokenTable{Columns: cols}
	if doc == nil {
		return table
	}
	for _, tok := range doc.Tokens {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = tokenAttrs[c](tok)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// EntityOptions controls Entities.
type EntityOptions struct {
	Labels []string          // only these labels are highlighted; empty means all
	Colors map[string]string // per-label color overrides
}

// EntityRow is one line of the entity table.
type EntityRow struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Start int     `json:"start_char"`
	End   int     `json:"end_char"`
	Score float32 `json:"score,omitempty"`
}

// EntityView is the rendered entity visualization.
type EntityView struct {
	HTML   template.HTML `json:"html"`
	Rows   []EntityRow   `json:"rows"`
	Labels []string      `json:"labels"` // every label present, for the filter
}

var cssColorRe = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20})$`)

const (
	markStyle  = "background: %s; padding: 0.45em 0.6em; margin: 0 0.25em; line-height: 1; border-radius: 0.35em;"
	labelStyle = "font-size: 0.8em; font-weight: bold; line-height: 1; border-radius: 0.35em; vertical-align: middle; margin-left: 0.5rem"
)

// Entities renders displaCy-style markup: text with each entity wrapped in a
// colored <mark> carrying a label badge. All document text is escaped.
func Entities(doc *nlp.Doc, opts EntityOptions) EntityView {
	var view EntityView
	if doc == nil {
		return view
	}
	keep := map[string]bool{}
	for _, l := range opts.Labels {
		if l = strings.ToUpper(strings.TrimSpace(l)); l != "" {
			keep[l] = true
		}
	}

	present := map[string]bool{}
	var b strings.Builder
	b.WriteString(`<div class="entities" style="line-height: 2.5; direction: ltr">`)
	offset := 0
	for _, ent := range doc.Ents {
		present[ent.Label] = true
		if len(keep) > 0 && !keep[ent.Label] {
			continue
		}
		if ent.Start < offset || ent.End > len(doc.Text) {
			continue
		}
		writeText(&b, doc.Text[offset:ent.Start])
		color := LabelColor(ent.Label, opts.Colors)
		if !cssColorRe.MatchString(color) {
			color = LabelColor(ent.Label, nil)
		}
		fmt.Fprintf(&b, `<mark class="entity" style="`+markStyle+`">`, color)
		writeText(&b, doc.Text[ent.Start:ent.End])
		fmt.Fprintf(&b, `<span style="%s">%s</span></mark>`, labelStyle, template.HTMLEscapeString(ent.Label))
		offset = ent.End

		view.Rows = append(view.Rows, EntityRow{
			Text:  doc.Text[ent.Start:ent.End],
			Label: ent.Label,
			Start: ent.Start,
			End:   ent.End,
			Score: ent.Score,
		})
	}
	writeText(&b, doc.Text[offset:])
	b.WriteString(`</div>`)

	view.HTML = template.HTML(b.String())
	for l := range present {
		view.Labels = append(view.Labels, l)
	}
	sort.Strings(view.Labels)
	return view
}

// writeText escapes s and keeps line breaks visible.
func writeText(b *strings.Builder, s string) {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<br>")
		}
		b.WriteString(template.HTMLEscapeString(line))
	}
}
