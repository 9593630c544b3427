package pg

import (
	"regexp"
	"time"
)

var validNamespaceRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// namespaceOrDefault keeps namespaces to a safe, bounded alphabet.
func namespaceOrDefault(ns string) string {
	if validNamespaceRe.MatchString(ns) {
		return ns
	}
	return "mirrorpair"
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
