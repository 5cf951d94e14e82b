package filter

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"go-lead-radar/internal/scraper"
)

// Policy decides how the words of one keyword phrase must appear in a candidate.
type Policy string

const (
	// PolicyAll keeps a candidate when every word of a keyword is present.
	PolicyAll Policy = "all"
	// PolicyAny keeps a candidate when at least one word of a keyword is present.
	PolicyAny Policy = "any"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAll:
		return PolicyAll, nil
	case PolicyAny:
		return PolicyAny, nil
	}
	return "", fmt.Errorf("unknown filter policy %q", s)
}

// Match is a kept candidate with the keyword phrases that selected it.
type Match struct {
	Candidate scraper.RawCandidate
	Keywords  []string
}

type keyword struct {
	phrase string
	tokens mapset.Set[string]
}

// Matcher applies one policy to every source.
type Matcher struct {
	policy Policy
}

func NewMatcher(policy Policy) *Matcher {
	if policy == "" {
		policy = PolicyAll
	}
	return &Matcher{policy: policy}
}

func (m *Matcher) Policy() Policy {
	return m.policy
}

// Filter returns the candidates matching at least one keyword, in input order.
// An empty keyword list keeps nothing.
func (m *Matcher) Filter(candidates []scraper.RawCandidate, keywords []string) []Match {
	compiled := compile(keywords)
	if len(compiled) == 0 {
		return nil
	}

	var out []Match
	for _, c := range candidates {
		words := tokenSet(c.Text())
		if words.Cardinality() == 0 {
			continue
		}
		var hits []string
		for _, kw := range compiled {
			if m.matches(kw.tokens, words) {
				hits = append(hits, kw.phrase)
			}
		}
		if len(hits) > 0 {
			out = append(out, Match{Candidate: c, Keywords: hits})
		}
	}
	return out
}

func (m *Matcher) matches(keyword, words mapset.Set[string]) bool {
	if m.policy == PolicyAny {
		for _, tok := range keyword.ToSlice() {
			if words.Contains(tok) {
				return true
			}
		}
		return false
	}
	return keyword.IsSubset(words)
}

// compile tokenises keywords, dropping blanks and repeated phrases.
func compile(keywords []string) []keyword {
	seen := make(map[string]bool, len(keywords))
	out := make([]keyword, 0, len(keywords))
	for _, phrase := range keywords {
		toks := Tokens(phrase)
		if len(toks) == 0 {
			continue
		}
		key := strings.Join(toks, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, keyword{
			phrase: strings.TrimSpace(phrase),
			tokens: mapset.NewThreadUnsafeSet(toks...),
		})
	}
	return out
}
