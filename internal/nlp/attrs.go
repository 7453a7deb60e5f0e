package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var normExceptions = map[string]string{
	"n't": "not", "n’t": "not",
	"'m": "am", "’m": "am",
	"'re": "are", "’re": "are",
	"'ll": "will", "’ll": "will",
	"'ve": "have", "’ve": "have",
}

var numberWords = map[string]bool{
	"zero": true, "one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true, "eleven": true,
	"twelve": true, "thirteen": true, "fourteen": true, "fifteen": true, "sixteen": true,
	"seventeen": true, "eighteen": true, "nineteen": true, "twenty": true, "thirty": true,
	"forty": true, "fifty": true, "sixty": true, "seventy": true, "eighty": true,
	"ninety": true, "hundred": true, "thousand": true, "million": true, "billion": true,
	"trillion": true, "dozen": true,
}

var ordinalWords = map[string]bool{
	"first": true, "second": true, "third": true, "fourth": true, "fifth": true,
	"sixth": true, "seventh": true, "eighth": true, "ninth": true, "tenth": true,
	"eleventh": true, "twelfth": true, "thirteenth": true, "twentieth": true,
	"thirtieth": true, "hundredth": true, "thousandth": true, "millionth": true,
	"billionth": true,
}

var urlTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "io": true, "edu": true, "gov": true,
	"de": true, "uk": true, "co": true, "ai": true, "dev": true, "info": true,
}

// computeAttrs fills the lexical attributes derived from tok.Text.
func computeAttrs(tok *Token) {
	text := tok.Text
	tok.Lower = strings.ToLower(text)
	tok.Norm = normForm(tok.Lower)
	tok.Shape = wordShape(text)
	tok.Prefix = firstRunes(text, 1)
	tok.Suffix = lastRunes(text, 3)

	tok.IsAlpha = allRunes(text, unicode.IsLetter)
	tok.IsASCII = allRunes(text, func(r rune) bool { return r < 128 })
	tok.IsDigit = allRunes(text, unicode.IsDigit)
	tok.IsPunct = !tok.IsSpace && allRunes(text, unicode.IsPunct)
	tok.IsTitle = isTitle(text)
	tok.IsUpper, tok.IsLower = caseFlags(text)
	tok.IsStop = stopWords[tok.Lower]
	tok.LikeNum = likeNum(tok.Lower)
	tok.LikeURL = likeURL(tok.Lower)
	tok.LikeEmail = emailTokenRe.MatchString(text)
}

func normForm(lower string) string {
	if v, ok := normExceptions[lower]; ok {
		return v
	}
	s := norm.NFKC.String(lower)
	return strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`).Replace(s)
}

// wordShape maps letters to X/x and digits to d, keeping other runes and
// capping runs of the same shape character at four.
func wordShape(text string) string {
	var b strings.Builder
	var last rune
	run := 0
	for _, r := range text {
		var c rune
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLetter(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		default:
			c = r
		}
		if c == last {
			run++
		} else {
			last, run = c, 1
		}
		if run <= 4 {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func allRunes(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

// isTitle follows the str.istitle convention: uppercase runes only after
// uncased ones, lowercase only after cased ones, at least one cased rune.
func isTitle(s string) bool {
	cased, prevCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if prevCased {
				return false
			}
			prevCased, cased = true, true
		case unicode.IsLower(r):
			if !prevCased {
				return false
			}
			prevCased, cased = true, true
		default:
			prevCased = false
		}
	}
	return cased
}

func caseFlags(s string) (upper, lower bool) {
	hasCased, hasUpper, hasLower := false, false, false
	for _, r := range s {
		if !isCased(r) {
			continue
		}
		hasCased = true
		if unicode.IsLower(r) {
			hasLower = true
		} else {
			hasUpper = true
		}
	}
	return hasCased && !hasLower, hasCased && !hasUpper
}

func likeNum(lower string) bool {
	s := strings.TrimLeft(lower, "+-±~")
	if s == "" {
		return false
	}
	if allRunes(strings.NewReplacer(",", "", ".", "").Replace(s), unicode.IsDigit) {
		return true
	}
	if num, den, ok := strings.Cut(s, "/"); ok && allRunes(num, unicode.IsDigit) && allRunes(den, unicode.IsDigit) {
		return true
	}
	if numberWords[s] || ordinalWords[s] {
		return true
	}
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(s, suf) && allRunes(strings.TrimSuffix(s, suf), unicode.IsDigit) {
			return true
		}
	}
	return false
}

func likeURL(lower string) bool {
	if lower == "" || strings.Contains(lower, "@") {
		return false
	}
	for _, p := range []string{"http://", "https://", "ftp://", "www."} {
		if strings.HasPrefix(lower, p) && len(lower) > len(p) {
			return true
		}
	}
	host, _, _ := strings.Cut(lower, "/")
	dot := strings.LastIndexByte(host, '.')
	if dot <= 0 || dot == len(host)-1 {
		return false
	}
	return urlTLDs[host[dot+1:]] && allRunes(host[:dot], func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-'
	})
}
