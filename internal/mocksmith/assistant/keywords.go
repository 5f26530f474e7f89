package assistant

import (
	"sort"
	"strings"

	"mocksmith/internal/mocksmith/domain"
)

// stopWords are domain filler words that carry no signal for relevance
// ranking: verbs the operator uses to phrase a request and generic nouns
// that match every mapping.
var stopWords = map[string]struct{}{
	"create": {}, "creating": {}, "update": {}, "change": {}, "modify": {},
	"delete": {}, "remove": {}, "make": {}, "build": {}, "add": {},
	"endpoint": {}, "endpoints": {}, "mapping": {}, "mappings": {},
	"mock": {}, "mocks": {}, "stub": {}, "stubs": {}, "response": {},
	"request": {}, "please": {}, "want": {}, "need": {}, "would": {},
	"could": {}, "should": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "have": {}, "like": {}, "returns": {}, "return": {},
	"show": {}, "give": {}, "what": {}, "which": {}, "when": {},
	"workspace": {}, "namespace": {}, "the": {}, "and": {}, "for": {},
	"new": {}, "all": {},
}

// ExtractKeywords turns free text into a normalized keyword set: lowercase,
// whitespace-split, tokens of length <= 2 dropped, stop words dropped,
// non-alphanumeric characters stripped, tokens that become empty dropped.
// Pure and deterministic.
func ExtractKeywords(text string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(text)) {
		if len(token) <= 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		token = stripNonAlnum(token)
		if token == "" {
			continue
		}
		keywords[token] = struct{}{}
	}
	return keywords
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// searchText concatenates the fields a keyword can hit: name, path, method,
// and tags, lowercased.
func searchText(m *domain.Mapping) string {
	parts := []string{m.Name, m.Path, m.Method}
	parts = append(parts, m.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// Relevance scores a mapping against a keyword set as the fraction of
// keywords found as substrings of the mapping's search text. An empty
// keyword set scores 1.0 uniformly; a prompt with no usable keywords is
// equally relevant to everything. The result is always in [0,1].
func Relevance(m *domain.Mapping, keywords map[string]struct{}) float64 {
	if len(keywords) == 0 {
		return 1.0
	}
	text := searchText(m)
	found := 0
	for k := range keywords {
		if strings.Contains(text, k) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// SelectRelevant scores every mapping against the prompt's keywords and
// returns the top limit, highest score first. Ties preserve the original
// relative order; the stable sort guarantees it rather than relying on
// incidental sort behaviour.
func SelectRelevant(entities []*domain.Mapping, prompt string, limit int) []*domain.Mapping {
	keywords := ExtractKeywords(prompt)

	ranked := make([]*domain.Mapping, len(entities))
	copy(ranked, entities)

	scores := make(map[*domain.Mapping]float64, len(entities))
	for _, m := range entities {
		scores[m] = Relevance(m, keywords)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
