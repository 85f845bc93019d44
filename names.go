package slate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidName means an entity name does not satisfy the server's naming
// rules. Checked locally before anything is queued for commit.
var ErrInvalidName = errors.New("slate: invalid entity name")

// entityNameRe is the server's naming rule: names start and end with an
// ASCII word character and may contain dots and dashes in between.
var entityNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]([a-zA-Z0-9_.\-]*[a-zA-Z0-9_])?$`)

// nameSplitChars are treated as word boundaries by SlugifyName and replaced
// with the separator.
const nameSplitChars = " ,./\\;:!|*^#@~+-_="

// foldTransformer decomposes accented characters and strips the combining
// marks, so "Révision" folds to "Revision" before slugging.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ValidateEntityName checks a name against the server's naming rules,
// so an illegal name fails locally instead of poisoning a batch commit.
func ValidateEntityName(name string) error {
	if !entityNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

// SlugifyName converts arbitrary display text into a name the server
// accepts: accents folded to ASCII, separator runs collapsed to single
// underscores, anything else dropped. The result may be empty when the
// input contains no usable characters.
func SlugifyName(text string) string {
	folded, _, err := transform.String(foldTransformer, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder

	pendingSep := false

	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}

			pendingSep = false

			b.WriteRune(r)
		case strings.ContainsRune(nameSplitChars, r):
			pendingSep = true
		default:
			// Unicode that survived folding (CJK, symbols) has no ASCII
			// equivalent and is dropped.
		}
	}

	return b.String()
}
