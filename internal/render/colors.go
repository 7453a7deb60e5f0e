package render

import (
	"hash/fnv"
	"strings"
)

// DefaultColors is the displaCy entity palette.
var DefaultColors = map[string]string{
	"ORG":         "#7aecec",
	"PRODUCT":     "#bfeeb7",
	"GPE":         "#feca74",
	"LOC":         "#ff9561",
	"PERSON":      "#aa9cfc",
	"NORP":        "#c887fb",
	"FAC":         "#9cc9cc",
	"EVENT":       "#ffeb80",
	"LAW":         "#ff8197",
	"LANGUAGE":    "#ff8197",
	"WORK_OF_ART": "#f0d0ff",
	"DATE":        "#bfe1d9",
	"TIME":        "#bfe1d9",
	"MONEY":       "#e4e7d2",
	"QUANTITY":    "#e4e7d2",
	"ORDINAL":     "#e4e7d2",
	"CARDINAL":    "#e4e7d2",
	"PERCENT":     "#e4e7d2",
	"MISC":        "#f0d0ff",
	"EMAIL":       "#c5e1f5",
	"URL":         "#c5e1f5",
}

var fallbackPalette = []string{
	"#f6c2c2", "#f7dba7", "#d9f0a3", "#b8e6d6", "#bcd4f6", "#d7c6f2", "#f2c6e4", "#e0e0e0",
}

// LabelColor picks the override, then the palette, then a stable color
// derived from the label name.
func LabelColor(label string, overrides map[string]string) string {
	label = strings.ToUpper(label)
	if c, ok := overrides[label]; ok && c != "" {
		return c
	}
	if c, ok := DefaultColors[label]; ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	return fallbackPalette[h.Sum32()%uint32(len(fallbackPalette))]
}
