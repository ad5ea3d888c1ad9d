package rules

import (
	"strings"
	"unicode"
)

// ContainsTerm reports whether term occurs in text as a whole word or phrase.
// Both sides are compared lower-cased.
func ContainsTerm(text, term string) bool {
	text = strings.ToLower(text)
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

// ContainsAny reports whether any of terms occurs in text once the exempt
// phrases have been blanked out.
func ContainsAny(text string, terms, exempt []string) (string, bool) {
	text = stripPhrases(strings.ToLower(text), exempt)
	for _, term := range terms {
		if ContainsTerm(text, term) {
			return term, true
		}
	}
	return "", false
}

func stripPhrases(text string, phrases []string) string {
	for _, p := range phrases {
		p = strings.ToLower(p)
		for {
			i := indexWord(text, p)
			if i < 0 {
				break
			}
			text = text[:i] + strings.Repeat(" ", len(p)) + text[i+len(p):]
		}
	}
	return text
}

func indexWord(text, phrase string) int {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], phrase)
		if i < 0 {
			return -1
		}
		start := from + i
		if boundaryBefore(text, start) && boundaryAfter(text, start+len(phrase)) {
			return start
		}
		from = start + 1
	}
	return -1
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !isWordByte(text[i])
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 0x80 || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}

// SplitList splits a comma separated list, trimming and lower-casing entries
// and dropping empty ones.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
