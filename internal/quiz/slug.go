package quiz

import "strings"

// translit maps lowercase Cyrillic letters to their Latin slug form. Hard
// and soft signs drop out entirely.
var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Slugify derives a URL slug from a quiz title: lowercase, transliterate
// Cyrillic, collapse every other run of characters to a single hyphen, and
// trim hyphens from both ends. The result contains only [a-z0-9-].
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			if latin, ok := translit[r]; ok {
				b.WriteString(latin)
			} else {
				b.WriteByte('-')
			}
		}
	}
	// Collapse hyphen runs left by consecutive unmapped characters.
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '-' })
	return strings.Join(parts, "-")
}
