package telemetry

import (
	"context"
	"strings"
	"testing"
)

func TestSafeAttributesFiltersUserText(t *testing.T) {
	kvs := map[string]interface{}{
		"text":            "Angela Merkel visited Paris",
		"nerapp.raw_text": "drop",
		"content":         "drop",
		"api_key":         "sk-123",
		"authorization":   "secret",
		"long_string":     strings.Repeat("x", 600),
		"nerapp.model":    "en_core_web_sm",
		"nerapp.bytes":    42,
		"nerapp.cached":   true,
		"nerapp.labels":   []string{"PERSON", "GPE"},
		"unsupported":     struct{}{},
	}

	attrs := SafeAttributes(kvs)
	got := map[string]bool{}
	for _, a := range attrs {
		got[string(a.Key)] = true
	}
	for _, bad := range []string{"text", "nerapp.raw_text", "content", "api_key", "authorization", "long_string", "unsupported"} {
		if got[bad] {
			t.Fatalf("unexpected attribute %s", bad)
		}
	}
	for _, ok := range []string{"nerapp.model", "nerapp.bytes", "nerapp.cached", "nerapp.labels"} {
		if !got[ok] {
			t.Fatalf("missing attribute %s", ok)
		}
	}
	if len(attrs) != 4 || attrs[0].Key != "nerapp.bytes" {
		t.Fatalf("attributes not sorted: %v", attrs)
	}
}

func TestSafeAttributesEmpty(t *testing.T) {
	if SafeAttributes(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestNoopProviderRecords(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatal("disabled provider reports enabled")
	}
	ctx, span := p.StartSpan(context.Background(), "nerapp.process", map[string]interface{}{"text": "secret"})
	if ctx == nil {
		t.Fatal("nil context")
	}
	span.End()
	p.RecordRequest("/api/v1/ner", 200, 1.5)
	p.RecordInference("m", "rules_only", 2.5, []string{"PERSON", "PERSON", "GPE"})
	p.Shutdown(context.Background())

	var nilProvider *Provider
	nilProvider.RecordRequest("/", 200, 1)
	nilProvider.RecordInference("m", "ml", 1, nil)
	nilProvider.Shutdown(context.Background())
	_ = nilProvider.Tracer()
	_ = nilProvider.Meter()
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Protocol: "carrier-pigeon", Endpoint: "localhost:4317"})
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
