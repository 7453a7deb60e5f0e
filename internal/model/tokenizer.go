package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Piece is one subword with byte offsets into the original text. Sub marks a
// continuation piece of the preceding word.
type Piece struct {
	ID    int64
	Start int
	End   int
	Sub   bool
}

// Tokenizer splits text into model pieces and exposes the special token ids
// needed to frame a sequence.
type Tokenizer interface {
	Pieces(text string) []Piece
	Specials() (cls, sep, pad int64)
}

type specialTokenMeta struct {
	IDs []int64 `json:"ids"`
}

// WordPieceTokenizer implements a BERT-compatible tokenizer.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
	maxWordRunes int
}

type UnigramTokenizer struct {
	vocab        map[string]int64
	scores       []float64
	unkID        int64
	unkScore     float64
	byteFallback bool
	byteTokens   map[byte]int64
	clsID        int64
	sepID        int64
	padID        int64
	trie         *unigramTrie
}

// LoadWordPieceTokenizer builds the tokenizer from vocab.txt.
func LoadWordPieceTokenizer(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return newTokenizerFromVocab(vocab, lowerCase, "##"), nil
}

// LoadTokenizerFromDir loads a tokenizer from vocab.txt or tokenizer.json.
func LoadTokenizerFromDir(dir string) (Tokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tokenizer dir is empty")
	}
	lower := readLowerCaseFlag(dir)

	jsonCandidates := []string{
		filepath.Join(dir, "tokenizer.json"),
		filepath.Join(dir, "tokenizer", "tokenizer.json"),
	}
	for _, path := range jsonCandidates {
		if _, err := os.Stat(path); err == nil {
			return loadTokenizerFromJSON(path, lower)
		}
	}

	candidates := []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return LoadWordPieceTokenizer(path, lower)
		}
	}
	return nil, fmt.Errorf("tokenizer assets not found (vocab.txt or tokenizer.json)")
}

// readLowerCaseFlag reads do_lower_case from tokenizer_config.json. Cased NER
// exports (the common case) default to false.
func readLowerCaseFlag(dir string) bool {
	for _, p := range []string{
		filepath.Join(dir, "tokenizer_config.json"),
		filepath.Join(dir, "tokenizer", "tokenizer_config.json"),
	} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var cfg struct {
			DoLowerCase *bool `json:"do_lower_case"`
		}
		if err := json.Unmarshal(data, &cfg); err == nil && cfg.DoLowerCase != nil {
			return *cfg.DoLowerCase
		}
	}
	return false
}

func loadTokenizerFromJSON(path string, lower bool) (Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer.json: %w", err)
	}
	var raw struct {
		Model struct {
			Type                    string `json:"type"`
			Vocab                   any    `json:"vocab"`
			UnkID                   int    `json:"unk_id"`
			ByteFallback            bool   `json:"byte_fallback"`
			ContinuingSubwordPrefix string `json:"continuing_subword_prefix"`
		} `json:"model"`
		Normalizer struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
		PostProcessor struct {
			SpecialTokens map[string]specialTokenMeta `json:"special_tokens"`
		} `json:"post_processor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tokenizer.json: %w", err)
	}
	modelType := strings.ToLower(strings.TrimSpace(raw.Model.Type))
	if modelType == "unigram" {
		tokens, scores, vocabMap := vocabWithScores(raw.Model.Vocab)
		if len(tokens) == 0 {
			return nil, fmt.Errorf("tokenizer.json missing vocab")
		}
		clsID := pickSpecialID(vocabMap, raw.PostProcessor.SpecialTokens, "<s>", "[CLS]")
		sepID := pickSpecialID(vocabMap, raw.PostProcessor.SpecialTokens, "</s>", "[SEP]")
		padID := pickSpecialID(vocabMap, raw.PostProcessor.SpecialTokens, "<pad>", "[PAD]")
		return newUnigramTokenizer(tokens, scores, vocabMap, raw.Model.UnkID, raw.Model.ByteFallback, clsID, sepID, padID), nil
	}

	if raw.Normalizer.Lowercase != nil {
		lower = *raw.Normalizer.Lowercase
	}
	if vocab := vocabFromAny(raw.Model.Vocab); len(vocab) > 0 {
		prefix := raw.Model.ContinuingSubwordPrefix
		if prefix == "" {
			prefix = "##"
		}
		return newTokenizerFromVocab(vocab, lower, prefix), nil
	}

	return nil, fmt.Errorf("tokenizer.json missing vocab")
}

func newTokenizerFromVocab(vocab map[string]int64, lower bool, continuation string) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    lower,
		continuation: continuation,
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
		maxWordRunes: 100,
	}
}

func vocabWithScores(raw any) ([]string, []float64, map[string]int64) {
	switch v := raw.(type) {
	case []any:
		tokens := make([]string, 0, len(v))
		scores := make([]float64, 0, len(v))
		vocab := make(map[string]int64, len(v))
		for i, item := range v {
			pair, ok := item.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			token, ok := pair[0].(string)
			if !ok || token == "" {
				continue
			}
			score, ok := asFloat(pair[1])
			if !ok {
				continue
			}
			tokens = append(tokens, token)
			scores = append(scores, score)
			vocab[token] = int64(i)
		}
		return tokens, scores, vocab
	default:
		return nil, nil, nil
	}
}

func asFloat(v any) (float64, bool) {
	switch num := v.(type) {
	case float64:
		return num, true
	case float32:
		return float64(num), true
	case int:
		return float64(num), true
	case int64:
		return float64(num), true
	default:
		return 0, false
	}
}

func pickSpecialID(vocab map[string]int64, specials map[string]specialTokenMeta, tokens ...string) int64 {
	for _, token := range tokens {
		if meta, ok := specials[token]; ok && len(meta.IDs) > 0 {
			return meta.IDs[0]
		}
		if id, ok := vocab[token]; ok {
			return id
		}
	}
	return -1
}

func vocabFromAny(raw any) map[string]int64 {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]int64, len(v))
		for k, val := range v {
			if num, ok := asInt64(val); ok {
				out[k] = num
			}
		}
		return out
	case []any:
		out := make(map[string]int64, len(v))
		for i, item := range v {
			switch pair := item.(type) {
			case []any:
				if len(pair) == 0 {
					continue
				}
				token, ok := pair[0].(string)
				if !ok || token == "" {
					continue
				}
				out[token] = int64(i)
			case map[string]any:
				token, ok := pair["token"].(string)
				if !ok || token == "" {
					continue
				}
				if num, ok := asInt64(pair["id"]); ok {
					out[token] = num
				} else {
					out[token] = int64(i)
				}
			}
		}
		return out
	default:
		return nil
	}
}

func asInt64(v any) (int64, bool) {
	switch num := v.(type) {
	case float64:
		return int64(num), true
	case int64:
		return num, true
	case int:
		return int64(num), true
	default:
		return 0, false
	}
}

func (t *WordPieceTokenizer) Specials() (int64, int64, int64) {
	return t.clsID, t.sepID, t.padID
}

// Pieces runs BERT basic pre-tokenization (whitespace and punctuation split)
// followed by greedy longest-match-first WordPiece.
func (t *WordPieceTokenizer) Pieces(text string) []Piece {
	var out []Piece
	for _, w := range splitBasicWords(text) {
		normalized, mapping := normalizeWord(w.Text, t.lowerCase)
		pieces := t.wordPieceOffsets(normalized)
		for i, p := range pieces {
			out = append(out, Piece{
				ID:    p.id,
				Start: w.Start + mapping[p.start],
				End:   w.Start + mapping[p.end],
				Sub:   i > 0,
			})
		}
	}
	return out
}

type wordPieceOffset struct {
	id    int64
	start int
	end   int
}

func (t *WordPieceTokenizer) wordPieceOffsets(token string) []wordPieceOffset {
	if token == "" {
		return nil
	}
	whole := []wordPieceOffset{{id: t.unkID, start: 0, end: len(token)}}
	if t.maxWordRunes > 0 && utf8.RuneCountInString(token) > t.maxWordRunes {
		return whole
	}
	if id, ok := t.vocab[token]; ok {
		return []wordPieceOffset{{id: id, start: 0, end: len(token)}}
	}

	var pieces []wordPieceOffset
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			if end < len(token) && !utf8.RuneStart(token[end]) {
				end--
				continue
			}
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, wordPieceOffset{id: id, start: start, end: end})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return whole
		}
	}
	if len(pieces) == 0 {
		return whole
	}
	return pieces
}

type wordSpan struct {
	Text  string
	Start int
	End   int
}

// splitBasicWords splits on whitespace and isolates every punctuation rune,
// mirroring the BERT basic tokenizer.
func splitBasicWords(text string) []wordSpan {
	if text == "" {
		return nil
	}
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r) || r == 0 || r == utf8.RuneError || unicode.IsControl(r):
			flush(idx)
		case isBertPunct(r):
			flush(idx)
			size := utf8.RuneLen(r)
			spans = append(spans, wordSpan{Text: text[idx : idx+size], Start: idx, End: idx + size})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}

func isBertPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// normalizeWord lowercases and strips accents when lower is set. The returned
// mapping has len(normalized)+1 entries, each the byte offset in word that
// produced the normalized byte at that index.
func normalizeWord(word string, lower bool) (string, []int) {
	if !lower {
		mapping := make([]int, len(word)+1)
		for i := range mapping {
			mapping[i] = i
		}
		return word, mapping
	}
	var b strings.Builder
	mapping := make([]int, 0, len(word)+1)
	for idx, r := range word {
		decomposed := norm.NFD.String(string(unicode.ToLower(r)))
		for _, dr := range decomposed {
			if unicode.Is(unicode.Mn, dr) {
				continue
			}
			n := utf8.RuneLen(dr)
			for k := 0; k < n; k++ {
				mapping = append(mapping, idx)
			}
			b.WriteRune(dr)
		}
	}
	mapping = append(mapping, len(word))
	return b.String(), mapping
}

type unigramTrie struct {
	children map[byte]*unigramTrie
	tokenID  int64
	score    float64
}

func newUnigramTokenizer(tokens []string, scores []float64, vocab map[string]int64, unkID int, byteFallback bool, clsID, sepID, padID int64) *UnigramTokenizer {
	t := &UnigramTokenizer{
		vocab:        vocab,
		scores:       scores,
		unkID:        int64(unkID),
		byteFallback: byteFallback,
		clsID:        clsID,
		sepID:        sepID,
		padID:        padID,
		trie:         &unigramTrie{children: map[byte]*unigramTrie{}, tokenID: -1},
	}
	t.byteTokens = t.collectByteTokens()
	if t.unkID >= 0 && int(t.unkID) < len(t.scores) {
		t.unkScore = t.scores[t.unkID]
	}
	for id, tok := range tokens {
		t.insertToken(tok, int64(id))
	}
	return t
}

func (t *UnigramTokenizer) insertToken(token string, id int64) {
	node := t.trie
	for i := 0; i < len(token); i++ {
		b := token[i]
		if node.children == nil {
			node.children = make(map[byte]*unigramTrie)
		}
		child := node.children[b]
		if child == nil {
			child = &unigramTrie{tokenID: -1}
			node.children[b] = child
		}
		node = child
	}
	node.tokenID = id
	if int(id) < len(t.scores) {
		node.score = t.scores[id]
	}
}

func (t *UnigramTokenizer) collectByteTokens() map[byte]int64 {
	out := map[byte]int64{}
	for tok, id := range t.vocab {
		if len(tok) == 6 && strings.HasPrefix(tok, "<0x") && strings.HasSuffix(tok, ">") {
			var b byte
			if n, err := fmt.Sscanf(tok[3:5], "%02X", &b); err == nil && n == 1 {
				out[b] = id
			}
		}
	}
	return out
}

func (t *UnigramTokenizer) Specials() (int64, int64, int64) {
	pad := t.padID
	if pad < 0 {
		pad = 0
	}
	return t.clsID, t.sepID, pad
}

const metaspace = "▁"

// Pieces tokenizes each whitespace-separated word with a metaspace prefix and
// maps piece offsets back onto the original text.
func (t *UnigramTokenizer) Pieces(text string) []Piece {
	var out []Piece
	for _, w := range splitWhitespace(text) {
		input := metaspace + w.Text
		for i, p := range t.tokenize(input) {
			start := max(p.start-len(metaspace), 0)
			end := max(p.end-len(metaspace), 0)
			out = append(out, Piece{
				ID:    p.id,
				Start: w.Start + start,
				End:   w.Start + end,
				Sub:   i > 0,
			})
		}
	}
	return out
}

func splitWhitespace(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	for idx, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, wordSpan{Text: text[start:idx], Start: start, End: idx})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = idx
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{Text: text[start:], Start: start, End: len(text)})
	}
	return spans
}

type unigramPiece struct {
	id         int64
	start, end int
}

// tokenize runs Viterbi over the trie and returns pieces with byte offsets
// into s.
func (t *UnigramTokenizer) tokenize(s string) []unigramPiece {
	input := []byte(s)
	n := len(input)
	if n == 0 {
		return nil
	}
	dp := make([]float64, n+1)
	prev := make([]int, n+1)
	prevTok := make([]int64, n+1)
	for i := 1; i <= n; i++ {
		dp[i] = math.Inf(-1)
		prev[i] = -1
	}
	for i := 0; i < n; i++ {
		if math.IsInf(dp[i], -1) {
			continue
		}
		node := t.trie
		matched := false
		for j := i; j < n; j++ {
			node = node.children[input[j]]
			if node == nil {
				break
			}
			if node.tokenID >= 0 {
				matched = true
				score := dp[i] + node.score
				if score > dp[j+1] {
					dp[j+1] = score
					prev[j+1] = i
					prevTok[j+1] = node.tokenID
				}
			}
		}
		if matched {
			continue
		}
		if t.byteFallback {
			if id, ok := t.byteTokens[input[i]]; ok {
				score := dp[i] + t.scoreFor(id)
				if score > dp[i+1] {
					dp[i+1] = score
					prev[i+1] = i
					prevTok[i+1] = id
				}
				continue
			}
		}
		if t.unkID >= 0 {
			score := dp[i] + t.unkScore
			if score > dp[i+1] {
				dp[i+1] = score
				prev[i+1] = i
				prevTok[i+1] = t.unkID
			}
		}
	}
	if math.IsInf(dp[n], -1) {
		return nil
	}
	var out []unigramPiece
	for pos := n; pos > 0; {
		p := prev[pos]
		if p < 0 || p >= pos {
			out = append(out, unigramPiece{id: t.unkID, start: pos - 1, end: pos})
			pos--
			continue
		}
		out = append(out, unigramPiece{id: prevTok[pos], start: p, end: pos})
		pos = p
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (t *UnigramTokenizer) scoreFor(id int64) float64 {
	if id >= 0 && int(id) < len(t.scores) {
		return t.scores[id]
	}
	return 0
}
