// Package deck turns KARDS deck codes into capture requests.
package deck

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// DefaultBaseURL is the deck builder page that renders a deck from its code.
const DefaultBaseURL = "https://www.kards.com/decks/deck-builder?hash="

// ErrInvalidCode is returned for strings that are not deck codes.
var ErrInvalidCode = errors.New("invalid deck code")

var (
	triggerPattern = regexp.MustCompile(`^!%%[A-Za-z0-9|;]+`)
	codePattern    = regexp.MustCompile(`^%%[A-Za-z0-9|;]+$`)
)

// ParseTrigger extracts the deck code from a chat message such as "!%%45|o0o5j4".
// Anything after the code is ignored.
func ParseTrigger(message string) (string, bool) {
	match := triggerPattern.FindString(strings.TrimSpace(message))
	if match == "" {
		return "", false
	}
	return match[1:], true
}

// ValidCode reports whether code is a complete deck code.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// URL returns the deck builder URL for code. An empty base selects DefaultBaseURL.
func URL(base, code string) (string, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return "", ErrInvalidCode
	}
	if base == "" {
		base = DefaultBaseURL
	}
	return base + url.QueryEscape(code), nil
}
