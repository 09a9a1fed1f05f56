// Package naming derives plural, friendly and SQL names from model and
// property identifiers.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words splits an identifier on case changes and separators:
// "BookAuthor" -> ["Book", "Author"], "ISBNCode" -> ["ISBN", "Code"].
func Words(s string) []string {
	var words []string
	runes := []rune(s)
	start := 0
	flush := func(end int) {
		if end > start {
			words = append(words, string(runes[start:end]))
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '_' || r == '-' || r == ' ' {
			flush(i)
			start = i + 1
			continue
		}
		if i == start {
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return words
}

// Snake converts an identifier to snake_case.
func Snake(s string) string {
	words := Words(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "_")
}

var titleCaser = cases.Title(language.English)

// Friendly converts an identifier into a human readable label:
// "publishedAt" -> "Published At".
func Friendly(s string) string {
	words := Words(s)
	for i, w := range words {
		if isAcronym(w) {
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

func isAcronym(w string) bool {
	if len(w) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Pluralize returns the plural of an identifier, inflecting only its last
// word: "BookAuthor" -> "BookAuthors", "Category" -> "Categories".
func Pluralize(s string) string {
	words := Words(s)
	if len(words) == 0 {
		return s
	}
	last := words[len(words)-1]
	idx := strings.LastIndex(s, last)
	return s[:idx] + pluralizeWord(last) + s[idx+len(last):]
}

func pluralizeWord(word string) string {
	lower := strings.ToLower(word)

	if plural, ok := irregularPlurals[lower]; ok {
		if unicode.IsUpper([]rune(word)[0]) {
			return strings.ToUpper(plural[:1]) + plural[1:]
		}
		return plural
	}
	if uncountable[lower] {
		return word
	}

	switch {
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"), strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return word + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(rune(lower[len(lower)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(lower, "fe"):
		return word[:len(word)-2] + "ves"
	case strings.HasSuffix(lower, "f") && !strings.HasSuffix(lower, "ff"):
		return word[:len(word)-1] + "ves"
	}
	return word + "s"
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

var irregularPlurals = map[string]string{
	"person":   "people",
	"man":      "men",
	"woman":    "women",
	"child":    "children",
	"mouse":    "mice",
	"goose":    "geese",
	"index":    "indices",
	"matrix":   "matrices",
	"vertex":   "vertices",
	"analysis": "analyses",
	"datum":    "data",
	"medium":   "media",
	"status":   "statuses",
	"chief":    "chiefs",
	"roof":     "roofs",
}

var uncountable = map[string]bool{
	"data":        true,
	"equipment":   true,
	"information": true,
	"metadata":    true,
	"news":        true,
	"series":      true,
	"species":     true,
}
