package scoring

import (
	"regexp"
	"strings"
	"sync"
)

var patterns sync.Map //nolint:gochecknoglobals // compiled LIKE patterns, keyed by source

// likeMatch reports whether s matches the SQL LIKE pattern, ignoring case.
// "%" matches any run of characters and "_" exactly one; everything else is
// literal and the whole string must match.
func likeMatch(pattern, s string) bool {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp).MatchString(s)
	}
	re := compileLike(pattern)
	patterns.Store(pattern, re)
	return re.MatchString(s)
}

func compileLike(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?is)^`)
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(`.*`)
		case '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}
