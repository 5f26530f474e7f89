package assistant

import (
	"strings"

	"mocksmith/internal/mocksmith/domain"
)

// Resolve identifies which mapping (if any) the prompt refers to.
//
// Strategies run in strict precedence order: the first strategy that yields
// any match wins, with no scoring across strategies:
//
//  1. the mapping's path (lowercased) appears in the prompt
//  2. the mapping's name (lowercased) appears in the prompt
//  3. the mapping's id appears in the prompt
//  4. exactly one mapping exists in the whole candidate set
//
// Within a strategy the first matching entity in candidate order wins; two
// entities both satisfying the same strategy is inherently ambiguous and no
// tie-break beyond candidate order is defined.
//
// Absence of a match is not an error: it is a normal unknown-target outcome
// the caller handles by asking for clarification.
func Resolve(prompt string, entities []*domain.Mapping) *domain.Mapping {
	if m := resolveInText(prompt, entities); m != nil {
		return m
	}
	// Single-entity fallback: with one candidate in the whole set there is
	// nothing to disambiguate. Direct-prompt resolution only.
	if len(entities) == 1 {
		return entities[0]
	}
	return nil
}

// ResolveFromHistory applies the three matching strategies to each turn's
// content, most recent turn first, returning on the first hit. The
// single-entity fallback does not apply here; it is reserved for direct
// prompts.
func ResolveFromHistory(turns []Turn, entities []*domain.Mapping) *domain.Mapping {
	for i := len(turns) - 1; i >= 0; i-- {
		if m := resolveInText(turns[i].Content, entities); m != nil {
			return m
		}
	}
	return nil
}

// resolveInText runs the path > name > id strategy pass over one text.
func resolveInText(text string, entities []*domain.Mapping) *domain.Mapping {
	lower := strings.ToLower(text)

	for _, m := range entities {
		if m.Path != "" && strings.Contains(lower, strings.ToLower(m.Path)) {
			return m
		}
	}
	for _, m := range entities {
		if m.Name != "" && strings.Contains(lower, strings.ToLower(m.Name)) {
			return m
		}
	}
	for _, m := range entities {
		if m.ID != "" && strings.Contains(text, m.ID) {
			return m
		}
	}
	return nil
}
