package nlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/config"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/model"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
)

// ErrTextTooLarge is returned when the input exceeds the configured limit.
var ErrTextTooLarge = errors.New("text too large")

// Pipeline turns raw text into a Doc with tokens and entities.
type Pipeline struct {
	Name string
	Mode string

	recognizer Recognizer
	maxBytes   int
	closer     func()
}

// NewPipeline wraps a recognizer. A nil recognizer yields tokens only.
// maxBytes <= 0 disables the size check.
func NewPipeline(name, mode string, r Recognizer, maxBytes int) *Pipeline {
	return &Pipeline{Name: name, Mode: mode, recognizer: r, maxBytes: maxBytes}
}

// Process lexes text and attaches recognized entities. Blank text is never
// sent to the recognizer.
func (p *Pipeline) Process(ctx context.Context, text string) (*Doc, error) {
	if p.maxBytes > 0 && len(text) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTextTooLarge, len(text), p.maxBytes)
	}
	doc := NewDoc(text)
	doc.Model = p.Name
	if p.recognizer == nil || strings.TrimSpace(text) == "" {
		return doc, nil
	}
	ctx, fellBack := withFallbackNote(ctx)
	spans, err := p.recognizer.Recognize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	doc.SetEnts(spans)
	doc.Degraded = *fellBack
	return doc, nil
}

// Labels lists the entity types the pipeline can emit.
func (p *Pipeline) Labels() []string {
	if p.recognizer == nil {
		return nil
	}
	return p.recognizer.Labels()
}

// Ready reports whether entities can be produced.
func (p *Pipeline) Ready() bool {
	return p.recognizer != nil
}

// Close releases model sessions.
func (p *Pipeline) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Load resolves <models_dir>/<name>, attempts to load the ONNX model and
// picks the recognition mode.
func Load(cfg config.ModelConfig, maxTextBytes int) (*Pipeline, error) {
	dir := filepath.Join(cfg.ModelsDir, cfg.Name)

	gaz, err := loadGazetteerFor(cfg.GazetteerPath, dir)
	if err != nil {
		return nil, err
	}
	rules := NewRuleRecognizer(gaz, RuleOptions{Patterns: true, Names: true})

	ner, loadErr := model.Load(dir, model.Options{
		SeqLen:       cfg.SeqLen,
		PoolSize:     cfg.PoolSize,
		IntraThreads: cfg.IntraThreads,
		InterThreads: cfg.InterThreads,
	})
	mode, err := model.DecideFallback(ner != nil, cfg.RequireML, cfg.AllowRuleFallback, loadErr)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Name: cfg.Name, Mode: mode, maxBytes: maxTextBytes}
	switch mode {
	case model.ModeML:
		p.recognizer = &HybridRecognizer{
			Patterns: NewRuleRecognizer(gaz, RuleOptions{Patterns: true}),
			ML:       &ModelRecognizer{NER: ner},
			Fallback: rules,
			Timeout:  cfg.InferenceTimeout,
			MinScore: float32(cfg.MinScore),
		}
		p.closer = ner.Close
	case model.ModeRules:
		redact.Logf("nlp: model %q not loaded (%v), using rules", cfg.Name, loadErr)
		p.recognizer = rules
	default:
		redact.Logf("nlp: model %q not loaded (%v), entity recognition disabled", cfg.Name, loadErr)
	}
	redact.Logf("nlp: pipeline %s mode=%s", cfg.Name, mode)
	return p, nil
}

// loadGazetteerFor prefers an explicit path, then a gazetteer shipped with the
// model, then the embedded default.
func loadGazetteerFor(path, modelDir string) (*Gazetteer, error) {
	if strings.TrimSpace(path) == "" {
		candidate := filepath.Join(modelDir, "gazetteer.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	return LoadGazetteer(path)
}

// ModelRecognizer adapts an ONNX NER model to Recognizer.
type ModelRecognizer struct {
	NER *model.NER
}

func (m *ModelRecognizer) Recognize(ctx context.Context, text string) ([]Span, error) {
	ents, err := m.NER.Recognize(ctx, text)
	if err != nil {
		return nil, err
	}
	spans := make([]Span, 0, len(ents))
	for _, e := range ents {
		spans = append(spans, Span{Label: e.Label, Start: e.Start, End: e.End, Score: e.Score, Source: SourceModel})
	}
	return spans, nil
}

func (m *ModelRecognizer) Labels() []string {
	return m.NER.Labels()
}
