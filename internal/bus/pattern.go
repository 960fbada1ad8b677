package bus

import "strings"

// matchPattern implements the glob-over-segmented-names syntax from spec
// §4.A: "*" matches exactly one segment, "**" matches any suffix (zero or
// more segments), anywhere in the pattern. Every concrete event name in
// this system (state:changed, orchestrator:stage:scheduled, vote:cast, …)
// segments on ":", so that is the separator used here rather than ".",
// which is reserved for Story State's dot-paths.
func matchPattern(pattern, eventType string) bool {
	if pattern == eventType {
		return true
	}
	return matchSegments(strings.Split(pattern, ":"), strings.Split(eventType, ":"))
}

func matchSegments(p, e []string) bool {
	if len(p) == 0 {
		return len(e) == 0
	}
	if p[0] == "**" {
		if len(p) == 1 {
			return true
		}
		for i := 0; i <= len(e); i++ {
			if matchSegments(p[1:], e[i:]) {
				return true
			}
		}
		return false
	}
	if len(e) == 0 {
		return false
	}
	if p[0] == "*" || p[0] == e[0] {
		return matchSegments(p[1:], e[1:])
	}
	return false
}

func isLiteral(pattern string) bool {
	return !strings.Contains(pattern, "*")
}
