package config

import (
	"context"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// StaticPlanResolver resolves users to plans from the loaded configuration.
// Assignments are read-only after construction, so lookups need no locking.
type StaticPlanResolver struct {
	defaultPlan string
	definitions map[string]PlanDefinition
	assignments map[string]string
}

// NewPlanResolver builds a resolver from the plans configuration.
func NewPlanResolver(cfg PlansConfig) *StaticPlanResolver {
	return &StaticPlanResolver{
		defaultPlan: cfg.Default,
		definitions: cfg.Definitions,
		assignments: cfg.Assignments,
	}
}

// PlanFor returns the plan assigned to a user, falling back to the default
// plan. Assignments to unknown plans also fall back to the default; the
// configuration validator rejects those up front, so this is a safety net
// for resolvers built programmatically.
func (r *StaticPlanResolver) PlanFor(ctx context.Context, ownerID string) (vfs.Plan, error) {
	if err := ctx.Err(); err != nil {
		return vfs.Plan{}, err
	}

	planID := r.defaultPlan
	if assigned, ok := r.assignments[ownerID]; ok {
		if _, defined := r.definitions[assigned]; defined {
			planID = assigned
		}
	}

	def := r.definitions[planID]
	return vfs.Plan{ID: planID, StorageLimit: def.StorageLimit}, nil
}

// Interface conformance check.
var _ vfs.PlanResolver = (*StaticPlanResolver)(nil)
