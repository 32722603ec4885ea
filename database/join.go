package database

import (
	"context"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
)

// Join batch-fetches the owners of the matched descriptors and attaches each
// descriptor, with its distance or score, to its owner. Matches whose owner
// cannot be resolved are dropped. Owners are returned in order of their first
// match and appear once even when several of their descriptors matched.
func Join(ctx context.Context, reader RetrievableReader, results []Result) []*model.Retrievable {
	if len(results) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(results))
	seen := make(map[uuid.UUID]struct{}, len(results))
	for _, r := range results {
		if _, ok := seen[r.Descriptor.OwnerID()]; !ok {
			seen[r.Descriptor.OwnerID()] = struct{}{}
			ids = append(ids, r.Descriptor.OwnerID())
		}
	}

	owners := make(map[uuid.UUID]*model.Retrievable, len(ids))
	for _, r := range reader.GetAllByID(ctx, ids) {
		owners[r.ID] = r
	}
	return Attach(results, owners)
}

// Attach adds every result to its owner in owners and returns the owners that
// received at least one result, in order of their first match.
func Attach(results []Result, owners map[uuid.UUID]*model.Retrievable) []*model.Retrievable {
	out := make([]*model.Retrievable, 0, len(owners))
	placed := make(map[uuid.UUID]struct{}, len(owners))
	for _, res := range results {
		owner, ok := owners[res.Descriptor.OwnerID()]
		if !ok {
			continue
		}
		owner.AddDescriptor(res.Descriptor)
		if res.Attribute != nil {
			owner.AddAttribute(res.Attribute)
		}
		if _, done := placed[owner.ID]; !done {
			placed[owner.ID] = struct{}{}
			out = append(out, owner)
		}
	}
	return out
}
