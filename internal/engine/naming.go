package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackSlug = "media"

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug turns a title into a filesystem-safe name of at most maxLen runes.
// Letters and digits are kept, accents stripped and every other run of
// characters becomes a single underscore.
func Slug(title string, maxLen int) string {
	folded, _, err := transform.String(foldDiacritics, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	pendingSep := false
	n := 0
	for _, r := range folded {
		if maxLen > 0 && n >= maxLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				if maxLen > 0 && n+1 >= maxLen {
					break
				}
				b.WriteByte('_')
				n++
			}
			pendingSep = false
			b.WriteRune(r)
			n++
			continue
		}
		pendingSep = true
	}

	if b.Len() == 0 {
		return fallbackSlug
	}
	return b.String()
}

// DeliverableName returns the final file name for a job.
func DeliverableName(id, title string, maxLen int, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return id + "_" + Slug(title, maxLen) + "." + ext
}
