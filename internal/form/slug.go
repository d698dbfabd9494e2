package form

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	reSlugStrip = regexp.MustCompile(`[^a-z0-9]+`)
	reSlugValid = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)
)

// Slugify lowercases v and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = reSlugStrip.ReplaceAllString(v, "-")
	return strings.Trim(v, "-")
}

// ValidSlug reports whether v is usable as-is, without rewriting.
func ValidSlug(v string) bool {
	return v != "" && reSlugValid.MatchString(v)
}

// RandomSuffix returns n random bytes hex-encoded, so 2n characters.
func RandomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; there is no sensible recovery at this call depth.
		panic("form: rand.Read: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
