// Package aging implements the Relevance & Aging Engine (spec §4.4):
// content-class inference, multi-factor relevance scoring, phase
// assignment, and tier-migration recommendations.
package aging

import (
	"github.com/coregx/ahocorasick"

	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/types"
)

// classRule is one content class's keyword set, tried in priority order
// (first match wins) against tags first, then content. Tag keywords are
// compared case-insensitively against normalized tags; content keywords
// are scanned with the same Aho-Corasick automaton the implicit-matcher
// style entity scanner uses for lexical keyword detection.
type classRule struct {
	class    types.ContentClass
	tagHints []string
}

var classRules = []classRule{
	{types.ClassCodeSnippet, []string{"code", "snippet", "function", "bug", "fix"}},
	{types.ClassConfiguration, []string{"config", "configuration", "settings", "env"}},
	{types.ClassUserPreference, []string{"preference", "pref", "style", "likes", "dislikes"}},
	{types.ClassWorkflowPattern, []string{"workflow", "pattern", "process", "convention"}},
	{types.ClassSystemState, []string{"system", "state", "status"}},
	{types.ClassTemporaryNote, []string{"temp", "temporary", "todo", "scratch"}},
	{types.ClassLearningData, []string{"learning", "lesson", "insight", "gotcha"}},
	{types.ClassReferenceMaterial, []string{"reference", "link", "doc-link", "external"}},
	{types.ClassDocumentation, []string{"docs", "documentation", "readme", "guide"}},
	{types.ClassProjectContext, []string{"context", "architecture", "overview"}},
}

// contentMarkers holds, per class, the Aho-Corasick automaton scanning
// lowercased content for class-indicative keywords when tags give no hint.
var contentMarkers = buildContentMarkers()

type markerSet struct {
	class   types.ContentClass
	pattern *ahocorasick.Automaton
}

func buildContentMarkers() []markerSet {
	sets := make([]markerSet, 0, len(classRules))
	for _, rule := range classRules {
		ac, err := ahocorasick.NewBuilder().
			AddStrings(rule.tagHints).
			SetMatchKind(ahocorasick.LeftmostLongest).
			SetPrefilter(true).
			Build()
		if err != nil {
			continue
		}
		sets = append(sets, markerSet{class: rule.class, pattern: ac})
	}
	return sets
}

// Classify infers a memory's content class from its tags, then its
// content, then scope, following spec §4.4 ("rule-based over content
// tokens, tags, and scope"). Falls back to project_context for project
// scope and documentation for global scope when nothing else matches.
func Classify(m *types.Memory) types.ContentClass {
	normTags := make([]string, 0, len(m.Tags))
	for _, t := range m.Tags {
		normTags = append(normTags, query.Tokenize(t)...)
	}
	tagSet := make(map[string]struct{}, len(normTags))
	for _, t := range normTags {
		tagSet[t] = struct{}{}
	}

	for _, rule := range classRules {
		for _, hint := range rule.tagHints {
			if _, ok := tagSet[hint]; ok {
				return rule.class
			}
		}
	}

	lower := []byte(toLowerASCII(m.Content))
	for _, ms := range contentMarkers {
		if len(ms.pattern.FindAllOverlapping(lower)) > 0 {
			return ms.class
		}
	}

	if m.Scope == types.ScopeProject {
		return types.ClassProjectContext
	}
	return types.ClassDocumentation
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ClassProfile carries the four fixed coefficients the spec's table
// attaches to each content class.
type ClassProfile struct {
	BaseHalfLifeDays   float64
	UsageSensitivity   float64
	ContextImportance  float64
	RelationshipFactor float64
}

// classProfiles is the literal table from spec §4.4.
var classProfiles = map[types.ContentClass]ClassProfile{
	types.ClassCodeSnippet:       {30, 0.8, 0.9, 0.7},
	types.ClassConfiguration:     {90, 0.3, 0.8, 0.5},
	types.ClassDocumentation:     {180, 0.4, 0.6, 0.8},
	types.ClassUserPreference:    {365, 0.9, 0.5, 0.2},
	types.ClassProjectContext:    {60, 0.7, 1.0, 0.9},
	types.ClassTemporaryNote:     {7, 0.9, 0.3, 0.1},
	types.ClassSystemState:       {1, 0.1, 0.4, 0.0},
	types.ClassLearningData:      {120, 0.6, 0.7, 0.8},
	types.ClassReferenceMaterial: {365, 0.2, 0.5, 0.9},
	types.ClassWorkflowPattern:   {45, 0.8, 0.8, 0.6},
}

// ProfileFor returns the fixed coefficients for class, defaulting to the
// documentation row if class is somehow unrecognized (defensive only;
// Classify never returns a class outside classProfiles).
func ProfileFor(class types.ContentClass) ClassProfile {
	if p, ok := classProfiles[class]; ok {
		return p
	}
	return classProfiles[types.ClassDocumentation]
}
