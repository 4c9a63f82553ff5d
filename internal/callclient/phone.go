package callclient

import (
	"fmt"
	"regexp"
	"strings"
)

// phonePattern is an E.164-style check applied after separator stripping:
// optional leading +, no leading zero, 8 to 15 digits total.
var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

// NormalizePhone strips common separators from a dialable number and
// validates the result. "+1 (800) 123-4567" normalizes to "+18001234567";
// anything that does not look like an international number fails with
// ErrInvalidPhone before any request is sent.
func NormalizePhone(raw string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '-', '.', '\t':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(raw))

	if !phonePattern.MatchString(stripped) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return stripped, nil
}
