package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "download token",
			input:    "model pull token=abcdef123456",
			disallow: []string{"abcdef123456"},
			require:  []string{"token=[REDACTED]"},
		},
		{
			name:     "manifest url",
			input:    "manifest_url=https://models.example.com/en_core_web_sm/manifest.json?sig=abc123",
			disallow: []string{"manifest.json?sig=abc123"},
			require:  []string{"https://models.example.com/manifest.json"},
		},
		{
			name:     "file base url",
			input:    "fetching from https://models.example.test/files/base/",
			disallow: []string{"files/base/"},
			require:  []string{"https://models.example.test/[REDACTED_PATH]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if strings.Contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if !strings.Contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestPreviewLevels(t *testing.T) {
	text := "Mail jane.doe@example.com or call +1 555 123 4567\nabout Berlin"

	if got := Preview(text, PreviewNone); got != "[62 bytes]" {
		t.Fatalf("none preview=%q", got)
	}
	if got := Preview(text, ""); !strings.HasPrefix(got, "[") {
		t.Fatalf("empty level should behave like none, got %q", got)
	}

	red := Preview(text, PreviewRedacted)
	if strings.Contains(red, "jane.doe") || strings.Contains(red, "555") {
		t.Fatalf("redacted preview leaked: %q", red)
	}
	if !strings.Contains(red, "[EMAIL]") || !strings.Contains(red, "[PHONE]") || !strings.Contains(red, "Berlin") {
		t.Fatalf("redacted preview=%q", red)
	}
	if strings.Contains(red, "\n") {
		t.Fatalf("preview must be single-line: %q", red)
	}

	full := Preview(text, PreviewFull)
	if !strings.Contains(full, "jane.doe@example.com") {
		t.Fatalf("full preview=%q", full)
	}
}

func TestPreviewTruncates(t *testing.T) {
	got := Preview(strings.Repeat("ä", 500), PreviewFull)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if n := len([]rune(got)); n != previewMaxRunes+1 {
		t.Fatalf("expected %d runes, got %d", previewMaxRunes+1, n)
	}
}
