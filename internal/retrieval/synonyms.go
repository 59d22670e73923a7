package retrieval

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type synonymsFile struct {
	Version  int                 `yaml:"version"`
	Synonyms map[string][]string `yaml:"synonyms"`
}

// SynonymsExpander widens keyword queries with user-defined synonym groups,
// e.g. spacex -> starship, falcon.
type SynonymsExpander struct {
	groups []synonymGroup
}

type synonymGroup struct {
	canonical string
	terms     []string
	normTerms []string
}

// SynonymMatch represents a matched synonym group.
type SynonymMatch struct {
	Canonical string
	Terms     []string
}

// LoadSynonymsFile loads a synonyms file. A blank path or a missing file
// yields a nil expander, which expands nothing.
func LoadSynonymsFile(path string) (*SynonymsExpander, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read synonyms file: %w", err)
	}

	var file synonymsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse synonyms file: %w", err)
	}

	return NewSynonymsExpander(file.Synonyms), nil
}

// NewSynonymsExpander builds a synonym expander from a map.
func NewSynonymsExpander(synonyms map[string][]string) *SynonymsExpander {
	if len(synonyms) == 0 {
		return nil
	}

	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]synonymGroup, 0, len(keys))
	for _, canonical := range keys {
		terms, normTerms := buildTerms(canonical, synonyms[canonical])
		if len(terms) == 0 {
			continue
		}
		groups = append(groups, synonymGroup{
			canonical: canonical,
			terms:     terms,
			normTerms: normTerms,
		})
	}

	if len(groups) == 0 {
		return nil
	}
	return &SynonymsExpander{groups: groups}
}

// Expand appends every term of each matched group to query. Keyword queries
// match any word, so the extra terms only widen recall.
func (e *SynonymsExpander) Expand(query string) (string, []SynonymMatch) {
	if e == nil {
		return query, nil
	}
	trimmed := strings.TrimSpace(query)
	normQuery := normalizeTerm(trimmed)
	if normQuery == "" {
		return query, nil
	}

	var matches []SynonymMatch
	for _, g := range e.groups {
		if matchesGroup(normQuery, g.normTerms) {
			matches = append(matches, SynonymMatch{Canonical: g.canonical, Terms: g.terms})
		}
	}
	if len(matches) == 0 {
		return query, nil
	}

	expanded := strings.TrimSpace(trimmed + " " + strings.Join(uniqueTerms(matches), " "))
	return expanded, matches
}

// matchesGroup matches whole words or phrases only, so "car" does not hit
// "carbon".
func matchesGroup(normQuery string, normTerms []string) bool {
	padded := " " + normQuery + " "
	for _, term := range normTerms {
		if term != "" && strings.Contains(padded, " "+term+" ") {
			return true
		}
	}
	return false
}

func buildTerms(canonical string, aliases []string) ([]string, []string) {
	terms := make([]string, 0, 1+len(aliases))
	normTerms := make([]string, 0, 1+len(aliases))
	seen := make(map[string]bool)

	add := func(term string) {
		term = strings.TrimSpace(term)
		norm := normalizeTerm(term)
		if norm == "" || seen[norm] {
			return
		}
		terms = append(terms, term)
		normTerms = append(normTerms, norm)
		seen[norm] = true
	}

	add(canonical)
	for _, alias := range aliases {
		add(alias)
	}
	return terms, normTerms
}

func uniqueTerms(matches []SynonymMatch) []string {
	seen := make(map[string]bool)
	var out []string
	for _, match := range matches {
		for _, term := range match.Terms {
			norm := normalizeTerm(term)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, term)
		}
	}
	return out
}

// normalizeTerm lowercases, drops a leading # or @, and folds _ and - into
// spaces.
func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.ReplaceAll(term, "_", " ")
	term = strings.ReplaceAll(term, "-", " ")
	fields := strings.Fields(term)
	for i, f := range fields {
		fields[i] = strings.TrimLeft(f, "#@")
	}
	return strings.Join(fields, " ")
}
