package pubsub

import (
	"regexp"
	"strings"
)

// compilePattern converts an AMQP topic pattern into a regular
// expression matcher: `.` is escaped,
// `*` matches exactly one dot-delimited segment, `#` matches any run of
// characters, including none and including dots, in place of its
// segment. The dots around `#` are still required, so `a.#` matches
// `a.` and `a.b.c` but not `a`.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	segments := strings.Split(pattern, ".")
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "*":
			parts = append(parts, `[^.]+`)
		case "#":
			parts = append(parts, `.*`)
		default:
			parts = append(parts, regexp.QuoteMeta(seg))
		}
	}
	return regexp.Compile("^" + strings.Join(parts, `\.`) + "$")
}
