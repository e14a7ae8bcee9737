package matcher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize brings text from the model and from the page into one form:
// NFC composed (Hangul jamo sequences become syllables), case folded and with
// whitespace collapsed.
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'‘':  '’',
	'“':  '”',
	'「':  '」',
	'『':  '』',
	'`':  '`',
}

var englishStopwords = setOf(
	"a", "an", "the", "to", "of", "and", "or", "in", "on", "at", "for", "with", "from", "by", "as",
	"this", "that", "these", "those", "it", "its", "is", "are", "be", "will", "then", "there",
	"please", "click", "press", "tap", "hit", "select", "choose", "button", "link", "go", "here",
	"you", "your", "me", "my", "i", "we", "how", "do", "does", "can", "could", "should", "what",
	"where", "which", "step", "next", "page", "screen", "want", "need", "like", "would", "show",
)

var koreanStopwords = setOf(
	"눌러서", "눌러", "누르고", "누르세요", "눌러주세요", "클릭", "클릭해서", "클릭하고", "클릭하세요",
	"클릭해주세요", "버튼", "선택", "선택해서", "선택하세요", "해주세요", "하세요", "해줘", "하고", "하려면",
	"그리고", "다음", "어떻게", "방법", "알려줘", "알려주세요", "화면", "페이지", "위해", "싶어", "싶어요",
	"좀", "이", "그", "저", "여기", "거기", "먼저", "그다음", "후", "뒤",
)

// Ordered longest first so "으로" wins over "로".
var koreanParticles = []string{
	"에서", "에게", "으로", "을", "를", "이", "가", "은", "는", "에", "의", "로",
}

func setOf(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func isStopword(tok string) bool {
	if _, ok := englishStopwords[tok]; ok {
		return true
	}
	_, ok := koreanStopwords[tok]
	return ok
}

// Phrases returns the non-empty quoted substrings of already normalized text.
func Phrases(s string) []string {
	var (
		out   []string
		runes = []rune(s)
	)

	for i := 0; i < len(runes); i++ {
		closing, ok := quotePairs[runes[i]]
		if !ok {
			continue
		}
		// An ASCII apostrophe glued to a word ("don't") does not open a quote.
		if runes[i] == '\'' && i > 0 && isWordRune(runes[i-1]) {
			continue
		}

		end := -1
		for j := i + 1; j < len(runes); j++ {
			if runes[j] == closing {
				end = j
				break
			}
		}
		if end < 0 {
			continue
		}

		phrase := strings.TrimSpace(string(runes[i+1 : end]))
		phrase = strings.Trim(phrase, ".,!?;:")
		if phrase != "" {
			out = append(out, phrase)
		}
		i = end
	}

	return out
}

// Tokens splits normalized text into content words: punctuation removed,
// stopwords of both languages dropped, Korean particles stripped. Duplicates
// are removed and order is preserved.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return !isWordRune(r) })

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if isStopword(f) {
			continue
		}
		f = stripParticle(f)
		if isStopword(f) {
			continue
		}
		if utf8.RuneCountInString(f) == 1 && f[0] < utf8.RuneSelf {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

func stripParticle(tok string) string {
	if !hasHangul(tok) {
		return tok
	}
	for _, p := range koreanParticles {
		stem, ok := strings.CutSuffix(tok, p)
		if ok && utf8.RuneCountInString(stem) >= 2 {
			return stem
		}
	}
	return tok
}

func hasHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsAny reports the first needle found in haystack.
func containsAny(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}
