// Package stream canonicalises the academic stream codes used to scope
// teacher and student visibility. The canonical form is "Form <N> <Direction>"
// with forms 1-4 and directions East, West, North, South.
package stream

import (
	"strconv"
	"strings"
)

const prefix = "Form "

// Directions in catalogue order.
var directions = []string{"East", "West", "North", "South"}

// Catalogue returns the 16 canonical stream values.
func Catalogue() []string {
	out := make([]string, 0, 16)
	for form := 1; form <= 4; form++ {
		for _, dir := range directions {
			out = append(out, prefix+strconv.Itoa(form)+" "+dir)
		}
	}
	return out
}

// index maps the case-folded spelling of each catalogue member, with and
// without the "Form " prefix, to its canonical form.
var index = func() map[string]string {
	m := make(map[string]string, 32)
	for _, s := range Catalogue() {
		key := strings.ToLower(s)
		m[key] = s
		m[strings.TrimPrefix(key, "form ")] = s
	}
	return m
}()

// Normalize converts a raw stream string to the canonical form, folding case
// and restoring the "Form " prefix on legacy bare spellings like "4 East".
// Values outside the catalogue are returned trimmed but otherwise unchanged
// and treated as "no stream assigned" by the matchers.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if canonical, ok := index[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// IsCanonical reports whether s, once normalised, is a catalogue member.
// Non-canonical values never participate in matching.
func IsCanonical(s string) bool {
	_, ok := index[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Key produces the case-folded comparison key for a stream value. Empty for
// values outside the catalogue.
func Key(s string) string {
	n := Normalize(s)
	if !IsCanonical(n) {
		return ""
	}
	return strings.ToLower(n)
}

// Match compares two raw stream values case-insensitively after
// normalisation. Values without a canonical form never match.
func Match(a, b string) bool {
	ka, kb := Key(a), Key(b)
	return ka != "" && ka == kb
}

// MatchKeys returns the set of trimmed, lower-cased raw spellings that a
// storage-layer equality filter should accept for the given stream: the
// canonical form plus the legacy bare form without the prefix.
func MatchKeys(s string) []string {
	key := Key(s)
	if key == "" {
		return nil
	}
	return []string{key, strings.TrimPrefix(key, strings.ToLower(prefix))}
}

// FromCode expands a two-letter maintenance code such as "4E" into the
// canonical form. Unknown codes fall through to Normalize.
func FromCode(code string) string {
	c := strings.TrimSpace(code)
	if len(c) == 2 {
		if _, err := strconv.Atoi(c[:1]); err == nil {
			for _, dir := range directions {
				if strings.EqualFold(c[1:], dir[:1]) {
					return prefix + c[:1] + " " + dir
				}
			}
		}
	}
	return Normalize(c)
}
