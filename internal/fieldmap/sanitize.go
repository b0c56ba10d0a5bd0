package fieldmap

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptPattern     = regexp.MustCompile(`(?is)<(script|style)[^>]*?>.*?</(script|style)>`)
	percentOctet      = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeText strips markup, control characters and percent-encoded
// octets, then collapses whitespace.
func SanitizeText(value string) string {
	if value == "" {
		return ""
	}
	value = scriptPattern.ReplaceAllString(value, "")
	value = tagPattern.ReplaceAllString(value, "")
	value = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar {
			return -1
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	value = percentOctet.ReplaceAllString(value, "")
	value = whitespacePattern.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// SanitizeEmail keeps only characters allowed in an address and lower-cases
// the domain. Values that are not address-shaped become empty.
func SanitizeEmail(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndex(value, "@")
	if at <= 0 || at == len(value)-1 {
		return ""
	}

	local := strings.Map(func(r rune) rune {
		if isLocalRune(r) {
			return r
		}
		return -1
	}, value[:at])

	labels := strings.Split(strings.ToLower(value[at+1:]), ".")
	cleaned := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
				return r
			}
			return -1
		}, label)
		label = strings.Trim(label, "-")
		if label != "" {
			cleaned = append(cleaned, label)
		}
	}

	if local == "" || len(cleaned) < 2 {
		return ""
	}
	return local + "@" + strings.Join(cleaned, ".")
}

func isLocalRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+/=?^_`{|}~.-", r)
}
