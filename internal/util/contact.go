package util

import (
	"regexp"
	"strings"
)

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nonPhoneRe = regexp.MustCompile(`[^\d\+]+`)
)

// NormalizeContact lowercases email addresses and strips formatting from
// phone numbers so the queue's (campaign, message, recipient) uniqueness key
// is stable across differently-formatted inputs.
func NormalizeContact(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.ContainsRune(s, '@') {
		return strings.ToLower(s)
	}
	if looksLikePhone(s) {
		s = nonPhoneRe.ReplaceAllString(s, "")
		if strings.HasPrefix(s, "00") {
			s = "+" + s[2:]
		}
	}
	return s
}

// ValidEmail is a cheap structural check, not RFC validation.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

func looksLikePhone(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
