package render

import (
	"strings"
	"testing"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
)

func sampleDoc() *nlp.Doc {
	doc := nlp.NewDoc("Apple hired <Tim> in Paris.\nDone")
	doc.SetEnts([]nlp.Span{
		{Label: "ORG", Start: 0, End: 5, Score: 0.9},
		{Label: "PERSON", Start: 13, End: 16},
		{Label: "GPE", Start: 21, End: 26},
	})
	return doc
}

func TestTokensDefaultColumns(t *testing.T) {
	table := Tokens(sampleDoc(), nil)
	if strings.Join(table.Columns, ",") != strings.Join(DefaultTokenAttrs, ",") {
		t.Fatalf("columns = %v", table.Columns)
	}
	if len(table.Rows) != len(sampleDoc().Tokens) {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	first := table.Rows[0]
	if first[0] != "0" || first[1] != "Apple" || first[2] != "apple" || first[3] != "Xxxxx" {
		t.Fatalf("unexpected first row %v", first)
	}
	if first[len(first)-1] != "ORG" {
		t.Fatalf("ent_type = %q", first[len(first)-1])
	}
}

func TestTokensSelectedColumns(t *testing.T) {
	table := Tokens(sampleDoc(), []string{"TEXT", "bogus", "ent_iob", "text"})
	if got := strings.Join(table.Columns, ","); got != "text,ent_iob" {
		t.Fatalf("columns = %s", got)
	}
	if table.Rows[0][1] != "B" || table.Rows[1][1] != "O" {
		t.Fatalf("iob column = %v %v", table.Rows[0], table.Rows[1])
	}
}

func TestTokensAllAttrsKnown(t *testing.T) {
	for _, a := range AllTokenAttrs {
		if _, ok := tokenAttrs[a]; !ok {
			t.Fatalf("attribute %q has no accessor", a)
		}
	}
	table := Tokens(nil, AllTokenAttrs)
	if len(table.Columns) != len(AllTokenAttrs) || len(table.Rows) != 0 {
		t.Fatalf("unexpected table %+v", table)
	}
}

func TestEntitiesMarkup(t *testing.T) {
	view := Entities(sampleDoc(), EntityOptions{})
	html := string(view.HTML)

	if !strings.HasPrefix(html, `<div class="entities"`) || !strings.HasSuffix(html, "</div>") {
		t.Fatalf("missing wrapper: %s", html)
	}
	if strings.Count(html, "<mark") != 3 {
		t.Fatalf("expected 3 marks: %s", html)
	}
	if !strings.Contains(html, "&lt;<mark") || !strings.Contains(html, "&gt; in ") {
		t.Fatalf("text not escaped: %s", html)
	}
	if strings.Contains(html, "<Tim>") {
		t.Fatalf("raw user text leaked: %s", html)
	}
	if !strings.Contains(html, "background: #7aecec") || !strings.Contains(html, ">ORG</span>") {
		t.Fatalf("missing ORG styling: %s", html)
	}
	if !strings.Contains(html, ".<br>Done") {
		t.Fatalf("newline not preserved: %s", html)
	}
	if len(view.Rows) != 3 || view.Rows[1].Text != "Tim" || view.Rows[0].Score != 0.9 {
		t.Fatalf("rows = %+v", view.Rows)
	}
	if strings.Join(view.Labels, ",") != "GPE,ORG,PERSON" {
		t.Fatalf("labels = %v", view.Labels)
	}
}

func TestEntitiesLabelFilter(t *testing.T) {
	view := Entities(sampleDoc(), EntityOptions{Labels: []string{"gpe"}})
	html := string(view.HTML)
	if strings.Count(html, "<mark") != 1 || !strings.Contains(html, ">GPE</span>") {
		t.Fatalf("filter not applied: %s", html)
	}
	if !strings.Contains(html, "Apple hired") {
		t.Fatalf("unhighlighted text dropped: %s", html)
	}
	if len(view.Labels) != 3 {
		t.Fatalf("filter should not hide available labels: %v", view.Labels)
	}
}

func TestEntitiesColorOverride(t *testing.T) {
	view := Entities(sampleDoc(), EntityOptions{Colors: map[string]string{"ORG": "#123456", "GPE": `red;" onmouseover="x`}})
	html := string(view.HTML)
	if !strings.Contains(html, "background: #123456") {
		t.Fatalf("override ignored: %s", html)
	}
	if strings.Contains(html, "onmouseover") || !strings.Contains(html, "background: #feca74") {
		t.Fatalf("unsafe color not replaced: %s", html)
	}
}

func TestEntitiesNoEntities(t *testing.T) {
	doc := nlp.NewDoc("nothing & here")
	view := Entities(doc, EntityOptions{})
	if !strings.Contains(string(view.HTML), "nothing &amp; here") || len(view.Rows) != 0 {
		t.Fatalf("unexpected view %+v", view)
	}
	if Entities(nil, EntityOptions{}).HTML != "" {
		t.Fatal("nil doc should render nothing")
	}
}

func TestLabelColor(t *testing.T) {
	if got := LabelColor("person", nil); got != "#aa9cfc" {
		t.Fatalf("person color = %s", got)
	}
	a := LabelColor("SPACESHIP", nil)
	if a != LabelColor("SPACESHIP", nil) {
		t.Fatal("fallback color is not stable")
	}
	if !cssColorRe.MatchString(a) {
		t.Fatalf("fallback color %q invalid", a)
	}
}
