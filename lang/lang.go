// Package lang implements the language context of the terminology server:
// Accept-Language parsing with q-weights, display-language matching with
// region and script fallback, and the message catalog.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ParseAcceptLanguage parses an Accept-Language header into an ordered
// priority list, most preferred first. An empty header yields nil; a
// malformed header returns an error.
func ParseAcceptLanguage(header string) ([]string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil, fmt.Errorf("invalid Accept-Language %q: %w", header, err)
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out, nil
}

// MatchQuality grades how well a designation language serves a wanted tag.
type MatchQuality int

// Match qualities, best first.
const (
	MatchExact MatchQuality = iota
	MatchLanguageOnly
	MatchWildcard
	MatchNone
)

// Match grades candidate against wanted: exact tag match first, then
// same base language (region/script fallback), then wildcard.
func Match(candidate, wanted string) MatchQuality {
	if wanted == "*" || candidate == "*" {
		return MatchWildcard
	}
	c := strings.ToLower(candidate)
	w := strings.ToLower(wanted)
	if c == w {
		return MatchExact
	}
	if base(c) == base(w) {
		return MatchLanguageOnly
	}
	return MatchNone
}

func base(tag string) string {
	if idx := strings.Index(tag, "-"); idx != -1 {
		return tag[:idx]
	}
	return tag
}

// Select picks the candidate that best serves the priority list. It walks
// the wanted list in order and, per entry, prefers exact over
// language-only over wildcard matches among the candidates. The returned
// index is -1 when nothing matches.
func Select(candidates []string, wanted []string) int {
	for _, w := range wanted {
		best := -1
		bestQuality := MatchNone
		for i, c := range candidates {
			q := Match(c, w)
			if q < bestQuality {
				bestQuality = q
				best = i
			}
		}
		if best >= 0 {
			return best
		}
	}
	return -1
}

// Matches reports whether candidate serves any entry of the priority list.
func Matches(candidate string, wanted []string) bool {
	for _, w := range wanted {
		if Match(candidate, w) != MatchNone {
			return true
		}
	}
	return false
}
