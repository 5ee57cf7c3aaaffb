package policy

import (
	"regexp"
	"strings"
)

// piiRule masks one class of personal data in visitor or guide text.
type piiRule struct {
	kind    string
	pattern *regexp.Regexp
}

// Order matters: card numbers would otherwise be caught by the phone rule.
var piiRules = []piiRule{
	{"email", regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{"card", regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)},
	{"phone", regexp.MustCompile(`\+?\d[\d\-() ]{7,}\d`)},
}

// RedactPII masks emails, payment card numbers and phone numbers. It reports
// the kinds that were found, in rule order.
func RedactPII(input string) (string, []string) {
	out := input
	var found []string
	for _, r := range piiRules {
		next := r.pattern.ReplaceAllString(out, "[REDACTED_"+strings.ToUpper(r.kind)+"]")
		if next != out {
			found = append(found, r.kind)
			out = next
		}
	}
	return out, found
}
