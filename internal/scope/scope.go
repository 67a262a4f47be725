// Package scope implements Scope & Identity (spec §4.3): ID generation,
// project_id normalization, fuzzy project-name matching, and resolving the
// storage backend that owns a given (tier, scope, project_id).
package scope

import (
	"strconv"
	"strings"
	"sync"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"

	"github.com/kittclouds/memoryd/internal/memerr"
	"github.com/kittclouds/memoryd/internal/types"
)

// NewID returns a fresh, opaque, globally unique memory id.
func NewID() string {
	return uuid.NewString()
}

// Normalize canonicalizes a raw project identifier (a path or name) so that
// re-initializations of the same project converge on the same backend:
// trim surrounding whitespace, case-fold, and collapse path separators and
// repeated whitespace to a single "/".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "\\", "/")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == ' ' || r == '\t'
	})
	return strings.Join(fields, "/")
}

// similarityThreshold is the minimum Levenshtein-ratio similarity for two
// project identifiers to be considered the same project (spec §4.3: "≥
// 0.8").
const similarityThreshold = 0.8

// Registry tracks every normalized project identifier this engine instance
// has seen, resolving near-duplicate names to the project that already
// owns a backend instead of silently fragmenting storage.
type Registry struct {
	mu    sync.Mutex
	known []string // normalized identifiers, insertion order
}

// NewRegistry returns an empty project registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Resolve normalizes raw and looks for a known project within the fuzzy
// similarity threshold. If found, it returns that project's canonical
// identifier (matched=true). Otherwise it registers raw's normalized form
// as a new project and returns it unchanged (matched=false).
func (r *Registry) Resolve(raw string) (canonical string, matched bool) {
	norm := Normalize(raw)
	if norm == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.known {
		if existing == norm {
			return existing, true
		}
		if similarity(existing, norm) >= similarityThreshold {
			return existing, true
		}
	}

	r.known = append(r.known, norm)
	return norm, false
}

// similarity returns a, b's normalized Levenshtein similarity in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return levenshtein.Similarity(a, b, nil)
}

// Disambiguate derives a suffix for a project whose normalized name
// collided with an existing, unrelated project: parentHint (typically the
// parent directory's basename) when non-empty, otherwise an incrementing
// counter starting at 2.
func Disambiguate(base, parentHint string, counter int) string {
	if parentHint != "" {
		return base + "-" + Normalize(parentHint)
	}
	if counter < 2 {
		counter = 2
	}
	return base + "-" + strconv.Itoa(counter)
}

// Key identifies the backend that owns memories for (tier, scope,
// project_id): the global backend for scope=global, or a per-project
// backend keyed by the normalized project_id.
type Key struct {
	Scope     types.Scope
	ProjectID string // normalized; empty for global
}

// ResolveKey validates and normalizes a (scope, project_id) pair into a
// backend Key, enforcing invariant 1: scope=project iff project_id != "".
func ResolveKey(scopeVal types.Scope, projectID string) (Key, error) {
	switch scopeVal {
	case types.ScopeGlobal:
		return Key{Scope: types.ScopeGlobal}, nil
	case types.ScopeProject:
		norm := Normalize(projectID)
		if norm == "" {
			return Key{}, memerr.New(memerr.InvalidParams, "project_id is required when scope is \"project\"")
		}
		return Key{Scope: types.ScopeProject, ProjectID: norm}, nil
	default:
		return Key{}, memerr.New(memerr.InvalidParams, "scope must be \"global\" or \"project\"")
	}
}
