package shared

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage returns the canonical BCP 47 form of a language tag reported by the remote API.
//
// Unknown or empty input yields "".
func NormalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return ""
	}
	return tag.String()
}

// IsEnglish reports whether the tag's base language is English ("en", "en-US", "en-GB", ...).
func IsEnglish(tag string) bool {
	if tag == "" {
		return false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return false
	}
	base, conf := t.Base()
	return conf == language.Exact && base == english
}

var english, _ = language.English.Base()
