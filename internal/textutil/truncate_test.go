package textutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "multibyte kept whole", in: "héllo wörld", n: 5, want: "héllo"},
		{name: "shorter than limit", in: "short", n: 10, want: "short"},
		{name: "exact length", in: "wörld", n: 5, want: "wörld"},
		{name: "no limit", in: "anything", n: 0, want: "anything"},
		{name: "empty", in: "", n: 3, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
		})
	}
}

func TestTruncate_MultibyteAtCutPoint(t *testing.T) {
	s := strings.Repeat("a", 999) + "é tail"
	got := Truncate(s, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 1000, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é"))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "wö...", Shorten("wörld", 2, "..."))
	assert.Equal(t, "wörld", Shorten("wörld", 5, "..."))
}
