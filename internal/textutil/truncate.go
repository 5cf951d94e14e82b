// Package textutil holds string helpers shared by adapters, the classifier
// and the health recorder. Lengths are counted in runes so cuts never split
// a UTF-8 sequence.
package textutil

import "unicode/utf8"

// Truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Shorten is Truncate that appends suffix when something was cut.
func Shorten(s string, n int, suffix string) string {
	if t := Truncate(s, n); len(t) < len(s) {
		return t + suffix
	}
	return s
}
