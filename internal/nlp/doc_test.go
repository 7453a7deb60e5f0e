package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appleText = "Apple is looking at buying U.K. startup"

func TestNewDocDefaults(t *testing.T) {
	doc := NewDoc(appleText)
	require.Len(t, doc.Tokens, 7)
	for _, tok := range doc.Tokens {
		assert.Equal(t, "O", tok.EntIOB)
		assert.Empty(t, tok.EntType)
	}
	assert.Empty(t, doc.Ents)
}

func TestSetEntsWritesIOB(t *testing.T) {
	doc := NewDoc(appleText)
	doc.SetEnts([]Span{
		{Label: "gpe", Start: 27, End: 31},
		{Label: "ORG", Start: 0, End: 5, Score: 0.9},
	})
	require.Len(t, doc.Ents, 2)

	assert.Equal(t, "ORG", doc.Ents[0].Label)
	assert.Equal(t, "Apple", doc.Ents[0].Text)
	assert.Equal(t, 0, doc.Ents[0].TokenStart)
	assert.Equal(t, 1, doc.Ents[0].TokenEnd)

	assert.Equal(t, "GPE", doc.Ents[1].Label)
	assert.Equal(t, "U.K.", doc.Ents[1].Text)

	assert.Equal(t, "B", doc.Tokens[0].EntIOB)
	assert.Equal(t, "ORG", doc.Tokens[0].EntType)
	assert.Equal(t, "O", doc.Tokens[1].EntIOB)
	assert.Equal(t, "B", doc.Tokens[5].EntIOB)
	assert.Equal(t, []string{"ORG", "GPE"}, doc.Labels())
}

func TestSetEntsMultiTokenSpan(t *testing.T) {
	doc := NewDoc("I met Angela Merkel today")
	doc.SetEnts([]Span{{Label: "PERSON", Start: 6, End: 19}})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "Angela Merkel", doc.Ents[0].Text)
	assert.Equal(t, "B", doc.Tokens[2].EntIOB)
	assert.Equal(t, "I", doc.Tokens[3].EntIOB)
	assert.Equal(t, "PERSON", doc.Tokens[3].EntType)
	assert.Equal(t, "O", doc.Tokens[4].EntIOB)
}

func TestSetEntsExpandsAndClamps(t *testing.T) {
	doc := NewDoc(appleText)
	doc.SetEnts([]Span{{Label: "ORG", Start: 1, End: 3}})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, 0, doc.Ents[0].Start)
	assert.Equal(t, 5, doc.Ents[0].End)

	doc.SetEnts([]Span{{Label: "ORG", Start: -5, End: 3}})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "Apple", doc.Ents[0].Text)

	doc.SetEnts([]Span{{Label: "X", Start: 32, End: 1000}})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "startup", doc.Ents[0].Text)
}

func TestSetEntsDropsInvalid(t *testing.T) {
	doc := NewDoc(appleText)
	doc.SetEnts([]Span{
		{Label: "", Start: 0, End: 5},
		{Label: "ORG", Start: 5, End: 6},
		{Label: "ORG", Start: 10, End: 10},
		{Label: "ORG", Start: 100, End: 120},
	})
	assert.Empty(t, doc.Ents)
	for _, tok := range doc.Tokens {
		assert.Equal(t, "O", tok.EntIOB)
	}
}

func TestSetEntsResolvesOverlaps(t *testing.T) {
	doc := NewDoc(appleText)
	// Same token length: the earlier span wins.
	doc.SetEnts([]Span{
		{Label: "B", Start: 6, End: 16},
		{Label: "A", Start: 0, End: 8},
	})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "A", doc.Ents[0].Label)

	// Longer wins over earlier.
	doc.SetEnts([]Span{
		{Label: "A", Start: 0, End: 5},
		{Label: "B", Start: 0, End: 16},
	})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "B", doc.Ents[0].Label)

	// Identical ranges: higher score wins.
	doc.SetEnts([]Span{
		{Label: "LOW", Start: 0, End: 5, Score: 0.2},
		{Label: "HIGH", Start: 0, End: 5, Score: 0.8},
	})
	require.Len(t, doc.Ents, 1)
	assert.Equal(t, "HIGH", doc.Ents[0].Label)
}

func TestSetEntsReplacesPrevious(t *testing.T) {
	doc := NewDoc(appleText)
	doc.SetEnts([]Span{{Label: "ORG", Start: 0, End: 5}})
	doc.SetEnts(nil)
	assert.Empty(t, doc.Ents)
	assert.Equal(t, "O", doc.Tokens[0].EntIOB)
	assert.Empty(t, doc.Tokens[0].EntType)
}
