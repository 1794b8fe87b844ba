// Package slug turns display names into URL-safe identifiers.
package slug

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxProductLength bounds product slugs.
const MaxProductLength = 200

// ErrEmpty reports that nothing usable survived normalisation.
var ErrEmpty = errors.New("slug: empty after normalisation")

// cyrillic maps lower-case Cyrillic letters to their Latin spelling.
// Letters mapped to "" are dropped (hard and soft signs).
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	// Ukrainian and Belarusian letters that show up in supplier feeds.
	'і': "i", 'ї': "yi", 'є': "ye", 'ґ': "g", 'ў': "u",
}

var lower = cases.Lower(language.Und)

// Make returns the slug for text. The result contains only a-z, 0-9 and
// single hyphens, never starting or ending with a hyphen. It may be empty.
func Make(text string) string {
	lowered := lower.String(text)

	var translit strings.Builder
	translit.Grow(len(lowered))
	for _, r := range lowered {
		if latin, ok := cyrillic[r]; ok {
			translit.WriteString(latin)
			continue
		}
		translit.WriteRune(r)
	}

	stripped := stripMarks(translit.String())

	var out strings.Builder
	out.Grow(len(stripped))
	pendingHyphen := false
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && out.Len() > 0 {
				out.WriteByte('-')
			}
			pendingHyphen = false
			out.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return out.String()
}

// Truncate cuts s to at most max bytes on a rune boundary and trims any
// trailing hyphen left behind. A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.Trim(s[:cut], "-")
}

// WithSuffix builds "<name>-<suffix>" with both parts slugified, shortening
// the name part so the whole slug fits max. When the name yields nothing the
// suffix alone is returned.
func WithSuffix(name, suffix string, max int) string {
	base := Make(name)
	tail := Make(suffix)
	if tail == "" {
		return Truncate(base, max)
	}
	if base == "" {
		return Truncate(tail, max)
	}
	if max > 0 {
		room := max - len(tail) - 1
		if room <= 0 {
			return Truncate(tail, max)
		}
		base = Truncate(base, room)
		if base == "" {
			return tail
		}
	}
	return base + "-" + tail
}

// Valid reports whether s is a well-formed non-empty slug.
func Valid(s string) bool {
	if s == "" || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	prevHyphen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return true
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
