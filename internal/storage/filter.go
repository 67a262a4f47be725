package storage

import "github.com/kittclouds/memoryd/internal/types"

// ScanFilter narrows a Scan call. Zero values mean "no constraint" except
// where noted.
type ScanFilter struct {
	Tier      types.Tier  // "" = any
	Scope     types.Scope // "" = any
	ProjectID string      // only applied when Scope == ScopeProject
	Tag       string      // "" = any
	Limit     int         // 0 = unbounded
}

// DedupKey identifies the (tier, scope, project) partition deduplication and
// scan-by-scope operate within.
type DedupKey struct {
	Tier      types.Tier
	Scope     types.Scope
	ProjectID string
}
