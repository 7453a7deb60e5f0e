package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/redact"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrModelUnavailable is returned when a model directory holds no usable export.
var ErrModelUnavailable = errors.New("model unavailable")

// Options tunes session creation.
type Options struct {
	SeqLen       int
	PoolSize     int
	IntraThreads int
	InterThreads int
	LibraryPath  string
}

// Entity is one recognized span with byte offsets into the input text.
type Entity struct {
	Label string
	Start int
	End   int
	Score float32
}

// NER wraps a pool of ONNX token-classification sessions and the tokenizer
// matching the export.
type NER struct {
	dir        string
	modelPath  string
	tokenizer  Tokenizer
	labels     []string
	numLabels  int
	seqLen     int
	sessions   chan *session
	poolSize   int
	outputName string
	outputDims []int64
}

type session struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

// Load builds a NER model from dir, which must hold model(.int8).onnx,
// tokenizer assets and label metadata.
func Load(dir string, opts Options) (*NER, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: model dir is empty", ErrModelUnavailable)
	}
	modelPath := resolveModelPath(dir)
	if modelPath == "" {
		return nil, fmt.Errorf("%w: no onnx export in %s", ErrModelUnavailable, dir)
	}
	if opts.SeqLen <= 0 {
		opts.SeqLen = 256
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.IntraThreads <= 0 {
		opts.IntraThreads = defaultIntraThreads
	}
	if opts.InterThreads <= 0 {
		opts.InterThreads = defaultInterThreads
	}

	tokenizer, err := LoadTokenizerFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	meta, err := loadLabelMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if len(meta.Labels) == 0 {
		return nil, fmt.Errorf("%w: %s has no token labels", ErrModelUnavailable, dir)
	}

	if err := initRuntime(dir, opts.LibraryPath); err != nil {
		return nil, err
	}
	outputName, outputDims, err := selectOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("output selection: %w", err)
	}

	n := &NER{
		dir:        dir,
		modelPath:  modelPath,
		tokenizer:  tokenizer,
		labels:     meta.Labels,
		numLabels:  meta.NumLabels,
		seqLen:     opts.SeqLen,
		sessions:   make(chan *session, opts.PoolSize),
		poolSize:   opts.PoolSize,
		outputName: outputName,
		outputDims: outputDims,
	}
	for i := 0; i < opts.PoolSize; i++ {
		ss, err := newSession(modelPath, opts.SeqLen, meta.NumLabels, outputDims, opts.IntraThreads, opts.InterThreads, meta.RequiresTokenType, outputName)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, opts.PoolSize, err)
		}
		n.sessions <- ss
	}
	redact.Logf("model: loaded %s export=%s labels=%d pool=%d seq_len=%d", filepath.Base(dir), filepath.Base(modelPath), len(meta.Labels), opts.PoolSize, opts.SeqLen)
	return n, nil
}

// Labels returns the mapped entity types the model can emit.
func (n *NER) Labels() []string {
	if n == nil {
		return nil
	}
	return entityLabels(n.labels)
}

// Dir returns the directory the model was loaded from.
func (n *NER) Dir() string {
	if n == nil {
		return ""
	}
	return n.dir
}

// Close releases every pooled session. It must not race with Recognize.
func (n *NER) Close() {
	if n == nil || n.sessions == nil {
		return
	}
	for {
		select {
		case ss := <-n.sessions:
			ss.destroy()
		default:
			return
		}
	}
}

type taggedPiece struct {
	piece Piece
	label string
	score float32
}

// Recognize tags text and returns entity spans. Long inputs are split into
// windows that never break a word.
func (n *NER) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if n == nil || n.tokenizer == nil || n.sessions == nil {
		return nil, errors.New("model not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces := n.tokenizer.Pieces(text)
	var tagged []taggedPiece
	for _, window := range splitWindows(pieces, n.seqLen-2) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := n.runWindow(ctx, window)
		if err != nil {
			return nil, err
		}
		tagged = append(tagged, out...)
	}
	return entitiesFromTagged(tagged), nil
}

func (n *NER) runWindow(ctx context.Context, window []Piece) ([]taggedPiece, error) {
	var ss *session
	select {
	case ss = <-n.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { n.sessions <- ss }()

	cls, sep, pad := n.tokenizer.Specials()
	ids := ss.inputIDs.GetData()
	attn := ss.attentionMask.GetData()
	for i := range ids {
		ids[i] = pad
		attn[i] = 0
	}
	ids[0], attn[0] = cls, 1
	for i, p := range window {
		ids[i+1], attn[i+1] = p.ID, 1
	}
	ids[len(window)+1], attn[len(window)+1] = sep, 1
	if ss.tokenTypeIDs != nil {
		tokenTypes := ss.tokenTypeIDs.GetData()
		for i := range tokenTypes {
			tokenTypes[i] = 0
		}
	}

	if err := ss.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := ss.output.GetData()
	numLabels := n.numLabels
	if len(n.outputDims) == 3 && n.outputDims[2] > 0 {
		numLabels = int(n.outputDims[2])
	}
	out := make([]taggedPiece, 0, len(window))
	for i, p := range window {
		base := (i + 1) * numLabels
		if base+numLabels > len(logits) {
			break
		}
		probs := softmax(logits[base : base+numLabels])
		best := 0
		for j := range probs {
			if probs[j] > probs[best] {
				best = j
			}
		}
		lbl := "O"
		if best < len(n.labels) {
			lbl = n.labels[best]
		}
		out = append(out, taggedPiece{piece: p, label: lbl, score: probs[best]})
	}
	return out, nil
}

// splitWindows cuts pieces into chunks of at most size, moving each cut back
// to a word start when possible.
func splitWindows(pieces []Piece, size int) [][]Piece {
	if size <= 0 {
		size = 1
	}
	var windows [][]Piece
	for start := 0; start < len(pieces); {
		end := min(start+size, len(pieces))
		if end < len(pieces) {
			back := end
			for back > start+1 && pieces[back].Sub {
				back--
			}
			if back > start && !pieces[back].Sub {
				end = back
			}
		}
		windows = append(windows, pieces[start:end])
		start = end
	}
	return windows
}

// entitiesFromTagged merges BIO-tagged pieces into spans. Continuation
// pieces extend the open entity and never start one; the span score is the
// mean over its word-initial pieces.
func entitiesFromTagged(tagged []taggedPiece) []Entity {
	var entities []Entity
	var cur *Entity
	var sum float32
	var count int
	flush := func() {
		if cur != nil {
			if count > 0 {
				cur.Score = sum / float32(count)
			}
			entities = append(entities, *cur)
			cur = nil
		}
		sum, count = 0, 0
	}

	for _, tp := range tagged {
		p := tp.piece
		if p.Start < 0 || p.End <= p.Start {
			continue
		}
		if p.Sub {
			if cur != nil && p.End > cur.End {
				cur.End = p.End
			}
			continue
		}
		prefix, typ := splitLabel(tp.label)
		if typ == "" || strings.EqualFold(tp.label, "O") {
			flush()
			continue
		}
		label := entityLabel(typ)
		if prefix == "B" || prefix == "S" || prefix == "U" || cur == nil || cur.Label != label {
			flush()
			cur = &Entity{Label: label, Start: p.Start, End: p.End}
			sum, count = tp.score, 1
			continue
		}
		if p.End > cur.End {
			cur.End = p.End
		}
		sum += tp.score
		count++
	}
	flush()
	return mergeEntities(entities)
}

func mergeEntities(in []Entity) []Entity {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})
	out := make([]Entity, 0, len(in))
	cur := in[0]
	for _, ent := range in[1:] {
		if ent.Start < cur.End && ent.Label == cur.Label {
			if ent.End > cur.End {
				cur.End = ent.End
			}
			if ent.Score > cur.Score {
				cur.Score = ent.Score
			}
			continue
		}
		out = append(out, cur)
		cur = ent
	}
	out = append(out, cur)
	return out
}

func newSession(modelPath string, seqLen, numLabels int, outputDims []int64, intraThr, interThr int, includeTokenType bool, outputName string) (*session, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(intraThr); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(interThr); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	ss := &session{}
	inputShape := ort.NewShape(1, int64(seqLen))
	if ss.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	if ss.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	if includeTokenType {
		if ss.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
			ss.destroy()
			return nil, fmt.Errorf("allocate token_type_ids tensor: %w", err)
		}
	}
	if ss.output, err = ort.NewEmptyTensor[float32](buildOutputShape(outputDims, seqLen, numLabels)); err != nil {
		ss.destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask"}
	inputValues := []ort.Value{ss.inputIDs, ss.attentionMask}
	if ss.tokenTypeIDs != nil {
		inputNames = append(inputNames, "token_type_ids")
		inputValues = append(inputValues, ss.tokenTypeIDs)
	}
	if outputName == "" {
		outputName = "logits"
	}
	ss.session, err = ort.NewAdvancedSession(modelPath, inputNames, []string{outputName}, inputValues, []ort.Value{ss.output}, opts)
	if err != nil {
		ss.destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return ss, nil
}

func (s *session) destroy() {
	if s == nil {
		return
	}
	if s.session != nil {
		s.session.Destroy()
	}
	if s.inputIDs != nil {
		s.inputIDs.Destroy()
	}
	if s.attentionMask != nil {
		s.attentionMask.Destroy()
	}
	if s.tokenTypeIDs != nil {
		s.tokenTypeIDs.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	out := make([]float32, len(logits))
	for i, v := range logits {
		exp := math.Exp(float64(v - maxVal))
		out[i] = float32(exp)
		sum += exp
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
