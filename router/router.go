// Package router implements intent routing: mapping a free-text
// request onto a pattern id using the Pattern index's tag/category
// vocabulary.
package router

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelfi/patternrunner/core"
	"github.com/kestrelfi/patternrunner/pattern"
)

// Matcher resolves free-text intent to a ranked list of candidate pattern
// ids. KeywordMatcher is the only implementation here; an embedding-based
// Matcher is a natural extension but needs a vector-search dependency none
// of the example repos carry, so it is left as an extension point.
type Matcher interface {
	Match(text string) ([]Candidate, error)
}

// Candidate is one ranked routing result.
type Candidate struct {
	PatternID string
	Score     int
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// KeywordMatcher scores patterns by tag/category/description token overlap
// against the loaded Pattern index.
type KeywordMatcher struct {
	loader *pattern.Loader
	logger core.Logger
}

// NewKeywordMatcher builds a KeywordMatcher over loader.
func NewKeywordMatcher(loader *pattern.Loader, logger core.Logger) *KeywordMatcher {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &KeywordMatcher{loader: loader, logger: logger}
}

// Match tokenizes text and scores every loaded pattern by token overlap.
// Returns ErrUnresolvedIntent if no pattern shares a single token with the
// request.
func (m *KeywordMatcher) Match(text string) ([]Candidate, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, core.NewEngineError(core.KindInvalidInput, "router.Match", "empty intent text", core.ErrInvalidInput)
	}

	scores := m.loader.MatchTokens(tokens)
	if len(scores) == 0 {
		return nil, core.NewEngineError(core.KindUnresolvedIntent, "router.Match",
			"no pattern matches the given intent", core.ErrUnresolvedIntent)
	}

	out := make([]Candidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, Candidate{PatternID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PatternID < out[j].PatternID
	})
	return out, nil
}

// Best returns the single top-ranked candidate.
func (m *KeywordMatcher) Best(text string) (string, error) {
	candidates, err := m.Match(text)
	if err != nil {
		return "", err
	}
	return candidates[0].PatternID, nil
}

func tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	seen := map[string]bool{}
	var out []string
	for _, t := range matches {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
