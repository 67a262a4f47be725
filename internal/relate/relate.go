// Package relate implements spec §4.6's Deduplication & Relationships
// component: turning write-time similarity scores into relationship edges
// and lazily decaying edge strength between reads.
package relate

import (
	"context"

	"github.com/kittclouds/memoryd/internal/query"
	"github.com/kittclouds/memoryd/internal/storage"
	"github.com/kittclouds/memoryd/internal/types"
)

// MinEdgeStrength is the threshold above which a similarity score becomes a
// relationship edge (spec §4.6). Alias of types.MinEdgeStrength, which is
// where the value actually lives so that storage can read it without
// importing relate (relate already imports storage).
const MinEdgeStrength = types.MinEdgeStrength

// CascadeStrength is the threshold at which delete_memory's cascade option
// removes a connected memory (spec §4.1/§4.6). Alias of types.CascadeStrength.
const CascadeStrength = types.CascadeStrength

// DecayPerDay is the multiplicative decay applied to an edge's strength for
// each day since it was last reinforced (spec §4.6). Alias of
// types.DecayPerDay.
const DecayPerDay = types.DecayPerDay

// ReinforceFromSimilarity computes the similarity between a freshly stored
// memory and a set of existing candidates in the same partition, and
// upserts an edge for every pair at or above MinEdgeStrength. It returns
// the number of edges written, for callers that want to report it.
func ReinforceFromSimilarity(ctx context.Context, store storage.Store, m *types.Memory, candidates []*types.Memory, idf map[string]float64, now int64) (int, error) {
	similars := query.FindSimilar(m.Content, m.Tags, candidates, idf, MinEdgeStrength, len(candidates))
	written := 0
	for _, s := range similars {
		if s.Memory.ID == m.ID {
			continue
		}
		if err := store.UpsertRelationship(ctx, m.ID, s.Memory.ID, s.Score, now); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// Decayed returns r's strength after accounting for elapsed time since its
// last reinforcement, without mutating r or touching storage. Callers that
// want the decay persisted call Refresh.
func Decayed(r *types.Relationship, now int64) float64 {
	return r.Decayed(now)
}

// Refresh recomputes r's decayed strength and persists it, stamping
// LastReinforced forward to now so repeated reads within the same instant
// don't re-decay an already-decayed value. Strength decay is applied lazily
// on read, per spec §4.6; this is the "on read" half of that contract.
func Refresh(ctx context.Context, store storage.Store, r *types.Relationship, now int64) (*types.Relationship, error) {
	decayed := Decayed(r, now)
	if decayed == r.Strength && now == r.LastReinforced {
		return r, nil
	}
	if err := store.UpsertRelationship(ctx, r.AID, r.BID, decayed, now); err != nil {
		return nil, err
	}
	r.Strength = decayed
	r.LastReinforced = now
	return r, nil
}

// RelationshipsWithDecay returns id's relationships with lazy decay applied
// and persisted, the form the aging engine's relationship factor needs.
// The cascade-delete check does not use it; storage.Delete decays edges
// itself via types.Relationship.Decayed.
func RelationshipsWithDecay(ctx context.Context, store storage.Store, id string, now int64) ([]*types.Relationship, error) {
	edges, err := store.RelationshipsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	for i, e := range edges {
		refreshed, err := Refresh(ctx, store, e, now)
		if err != nil {
			return nil, err
		}
		edges[i] = refreshed
	}
	return edges, nil
}
