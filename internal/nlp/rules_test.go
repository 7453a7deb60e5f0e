package nlp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type found struct {
	Label string
	Text  string
}

func recognize(t *testing.T, r Recognizer, text string) []found {
	t.Helper()
	spans, err := r.Recognize(context.Background(), text)
	require.NoError(t, err)
	out := make([]found, 0, len(spans))
	for _, sp := range spans {
		out = append(out, found{Label: sp.Label, Text: text[sp.Start:sp.End]})
	}
	return out
}

func defaultRules(t *testing.T) *RuleRecognizer {
	t.Helper()
	g, err := DefaultGazetteer()
	require.NoError(t, err)
	return NewRuleRecognizer(g, RuleOptions{Patterns: true, Names: true})
}

func TestRulesPersonPlaceDate(t *testing.T) {
	got := recognize(t, defaultRules(t), "Barack Obama was born in Hawaii on August 4, 1961.")
	assert.Equal(t, []found{
		{"PERSON", "Barack Obama"},
		{"GPE", "Hawaii"},
		{"DATE", "August 4, 1961"},
	}, got)
}

func TestRulesPatterns(t *testing.T) {
	r := NewRuleRecognizer(nil, RuleOptions{Patterns: true})
	cases := []struct {
		text string
		want []found
	}{
		{"The deal was worth $5 million and 20% of shares.", []found{{"MONEY", "$5 million"}, {"PERCENT", "20%"}}},
		{"Contact jane@example.com or visit https://example.org today.", []found{{"EMAIL", "jane@example.com"}, {"URL", "https://example.org"}, {"DATE", "today"}}},
		{"Meet me at 10:30 am on 2024-03-15.", []found{{"TIME", "10:30 am"}, {"DATE", "2024-03-15"}}},
		{"She finished 3rd among 12 runners.", []found{{"ORDINAL", "3rd"}, {"CARDINAL", "12"}}},
		{"It was founded in 1998 by two friends.", []found{{"DATE", "1998"}, {"CARDINAL", "two"}}},
		{"no entities here", []found{}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, recognize(t, r, tc.text))
		})
	}
}

func TestRulesNameHeuristics(t *testing.T) {
	r := defaultRules(t)
	cases := []struct {
		text string
		want []found
	}{
		{"We met Dr. Smith", []found{{"PERSON", "Smith"}}},
		{"She works at Acme Corp.", []found{{"ORG", "Acme Corp."}}},
		{"They flew to Zanzibar", []found{{"GPE", "Zanzibar"}}},
		{"He joined XYZQ", []found{{"ORG", "XYZQ"}}},
		{"Yes, Blorf said so", []found{}},
		{"The report arrived", []found{}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, recognize(t, r, tc.text))
		})
	}
}

func TestRulesOptionsSelectFamilies(t *testing.T) {
	g, err := DefaultGazetteer()
	require.NoError(t, err)
	text := "Angela lives in Berlin since 2005."

	patternsOnly := NewRuleRecognizer(g, RuleOptions{Patterns: true})
	assert.Equal(t, []found{{"DATE", "2005"}}, recognize(t, patternsOnly, text))

	namesOnly := NewRuleRecognizer(g, RuleOptions{Names: true})
	for _, f := range recognize(t, namesOnly, text) {
		assert.NotEqual(t, "DATE", f.Label)
	}

	assert.Equal(t, patternLabels, patternsOnly.Labels())
	assert.Contains(t, namesOnly.Labels(), "PERSON")
	assert.NotContains(t, namesOnly.Labels(), "DATE")
}

func TestRulesHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := defaultRules(t).Recognize(ctx, "Paris")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadGazetteerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.yaml")
	data := []byte(`
entities:
  product:
    - Widget
    - Widget Pro Max
  GPE:
    - New York
    - New York City
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	g, err := LoadGazetteer(path)
	require.NoError(t, err)
	r := NewRuleRecognizer(g, RuleOptions{Names: true})

	got := recognize(t, r, "buy the Widget Pro Max in New York City")
	assert.Equal(t, []found{{"PRODUCT", "Widget Pro Max"}, {"GPE", "New York City"}}, got)
	assert.Contains(t, r.Labels(), "PRODUCT")

	_, err = LoadGazetteer(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("entities: [1, 2"), 0o600))
	_, err = LoadGazetteer(path)
	assert.Error(t, err)
}

func TestLoadGazetteerDefault(t *testing.T) {
	g, err := LoadGazetteer("  ")
	require.NoError(t, err)
	assert.NotEmpty(t, g.Entities["GPE"])
	assert.NotEmpty(t, g.FirstNames)
	assert.NotEmpty(t, g.Titles)
	assert.NotEmpty(t, g.OrgSuffixes)
}
