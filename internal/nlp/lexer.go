package nlp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	urlTokenRe   = regexp.MustCompile(`(?i)^(https?://|ftp://|www\.)[^\s]*[^\s.,;:!?'")\]]$`)
	emailTokenRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	initialsRe   = regexp.MustCompile(`^([A-Za-z]\.)+$`)
)

var contractionSuffixes = []string{"n't", "n’t", "'s", "’s", "'ll", "’ll", "'re", "’re", "'ve", "’ve", "'m", "’m", "'d", "’d"}

var infixes = []string{"--", "—", "–", "…"}

var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true, "st.": true,
	"jr.": true, "sr.": true, "inc.": true, "ltd.": true, "co.": true, "corp.": true,
	"vs.": true, "etc.": true, "no.": true, "mt.": true, "gen.": true, "gov.": true,
	"sen.": true, "rep.": true, "rev.": true, "col.": true, "lt.": true, "sgt.": true,
	"jan.": true, "feb.": true, "mar.": true, "apr.": true, "jun.": true, "jul.": true,
	"aug.": true, "sep.": true, "sept.": true, "oct.": true, "nov.": true, "dec.": true,
	"a.m.": true, "p.m.": true, "e.g.": true, "i.e.": true, "approx.": true, "dept.": true,
}

type piece struct {
	text  string
	start int
}

// Tokenize splits text into tokens with byte offsets and lexical attributes.
// A single space after a token becomes that token's trailing whitespace;
// other whitespace runs become space tokens.
func Tokenize(text string) []Token {
	var tokens []Token
	add := func(p piece, space bool) {
		tok := Token{
			Index:   len(tokens),
			Text:    p.text,
			Start:   p.start,
			End:     p.start + len(p.text),
			IsSpace: space,
		}
		computeAttrs(&tok)
		tokens = append(tokens, tok)
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			j := i + size
			for j < len(text) {
				r2, s2 := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += s2
			}
			run, start := text[i:j], i
			if len(tokens) > 0 && !tokens[len(tokens)-1].IsSpace && run[0] == ' ' {
				tokens[len(tokens)-1].Whitespace = " "
				run, start = run[1:], start+1
			}
			if run != "" {
				add(piece{text: run, start: start}, true)
			}
			i = j
			continue
		}

		j := i + size
		for j < len(text) {
			r2, s2 := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(r2) {
				break
			}
			j += s2
		}
		var pieces []piece
		splitChunk(text[i:j], i, &pieces)
		for _, p := range pieces {
			add(p, false)
		}
		i = j
	}
	markSentenceStarts(tokens)
	return tokens
}

// splitChunk peels prefixes, suffixes and infixes off a whitespace-free chunk.
func splitChunk(s string, base int, out *[]piece) {
	if s == "" {
		return
	}
	for len(s) > 0 {
		if urlTokenRe.MatchString(s) || emailTokenRe.MatchString(s) {
			break
		}
		r, size := utf8.DecodeRuneInString(s)
		if size < len(s) && isPrefixRune(r) {
			*out = append(*out, piece{text: s[:size], start: base})
			s, base = s[size:], base+size
			continue
		}
		break
	}

	var suffixes []piece
	for len(s) > 0 {
		if urlTokenRe.MatchString(s) || emailTokenRe.MatchString(s) {
			break
		}
		if len(s) > 3 && strings.HasSuffix(s, "...") {
			suffixes = append(suffixes, piece{text: "...", start: base + len(s) - 3})
			s = s[:len(s)-3]
			continue
		}
		if c := contractionSuffix(s); c != "" {
			suffixes = append(suffixes, piece{text: s[len(s)-len(c):], start: base + len(s) - len(c)})
			s = s[:len(s)-len(c)]
			continue
		}
		r, size := utf8.DecodeLastRuneInString(s)
		if size < len(s) && isSuffixRune(r) {
			if r == '.' && keepPeriod(s) {
				break
			}
			suffixes = append(suffixes, piece{text: s[len(s)-size:], start: base + len(s) - size})
			s = s[:len(s)-size]
			continue
		}
		break
	}

	if s != "" {
		if k, inf := findInfix(s); k >= 0 && s != inf {
			splitChunk(s[:k], base, out)
			*out = append(*out, piece{text: inf, start: base + k})
			splitChunk(s[k+len(inf):], base+k+len(inf), out)
		} else {
			*out = append(*out, piece{text: s, start: base})
		}
	}
	for i := len(suffixes) - 1; i >= 0; i-- {
		*out = append(*out, suffixes[i])
	}
}

func isPrefixRune(r rune) bool {
	if strings.ContainsRune("-._@&/%", r) {
		return false
	}
	return unicode.IsPunct(r) || unicode.Is(unicode.Sc, r) || r == '<'
}

func isSuffixRune(r rune) bool {
	if strings.ContainsRune("_@#&/*", r) {
		return false
	}
	return unicode.IsPunct(r) || r == '%' || r == '°' || r == '>'
}

func contractionSuffix(s string) string {
	lower := strings.ToLower(s)
	for _, c := range contractionSuffixes {
		if len(s) > len(c) && strings.HasSuffix(lower, c) {
			return c
		}
	}
	return ""
}

func keepPeriod(s string) bool {
	return abbreviations[strings.ToLower(s)] || initialsRe.MatchString(s)
}

func findInfix(s string) (int, string) {
	best, which := -1, ""
	for _, inf := range infixes {
		if k := strings.Index(s, inf); k >= 0 && (best < 0 || k < best) {
			best, which = k, inf
		}
	}
	return best, which
}

// markSentenceStarts flags the first token of each sentence. A sentence ends
// at terminal punctuation (closing quotes and brackets stay attached) or at a
// blank line.
func markSentenceStarts(tokens []Token) {
	pending := true
	for i := range tokens {
		tok := &tokens[i]
		if tok.IsSpace {
			if strings.Count(tok.Text, "\n") >= 2 {
				pending = true
			}
			continue
		}
		if pending {
			if isClosingPunct(tok.Text) && i > 0 {
				continue
			}
			tok.IsSentStart = true
			pending = false
		}
		if isTerminal(tok.Text) {
			pending = true
		}
	}
}

func isTerminal(s string) bool {
	if s == "" {
		return false
	}
	if s == "…" {
		return true
	}
	for _, r := range s {
		if r != '.' && r != '!' && r != '?' {
			return false
		}
	}
	return true
}

func isClosingPunct(s string) bool {
	switch s {
	case `"`, "'", "”", "’", ")", "]", "}", "»":
		return true
	}
	return false
}
