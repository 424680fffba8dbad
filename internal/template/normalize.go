package template

import (
	"strings"
	"unicode/utf8"
)

var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Normalize lower-cases s, transliterates Cyrillic to Latin, replaces every
// character outside [a-z0-9] with a space and collapses runs of spaces.
// Transliterating both sides lets "forma_2_anketa.docx" match
// "Форма 2: Анкета участника".
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if lat, ok := translit[r]; ok {
			if lat != "" {
				sb.WriteString(lat)
				space = false
			}
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// SignificantWords returns the words of a normalised string longer than
// three characters, deduplicated, in order of first appearance.
func SignificantWords(normalized string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return words
}

// overlap is the share of words that occur in target.
func overlap(words []string, target string) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(target, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
