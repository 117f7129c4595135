package vfs

import (
	"context"
	"fmt"
	"sync"
)

// nearLimitThreshold is the used/quota ratio above which a user is flagged
// as approaching their storage limit.
const nearLimitThreshold = 0.9

// Plan describes a subscription tier's storage entitlement. Billing and the
// subscription workflow live outside this core; plans arrive here through a
// PlanResolver.
type Plan struct {
	// ID is the plan identifier, e.g. "free", "pro".
	ID string

	// StorageLimit is the maximum total bytes of ACTIVE and TRASHED files
	// a user on this plan may hold. 0 means unlimited.
	StorageLimit int64
}

// PlanResolver resolves the current plan of a user. Implementations may call
// a billing service or, as in pkg/config, serve a static plan table.
type PlanResolver interface {
	PlanFor(ctx context.Context, ownerID string) (Plan, error)
}

// Usage is a snapshot of a user's storage consumption.
type Usage struct {
	// Used is the sum of file sizes over the user's ACTIVE and TRASHED
	// files. Trashed bytes still count: trash is recoverable, so the
	// objects are retained.
	Used int64 `json:"used"`

	// Quota is the plan's storage limit in bytes. 0 means unlimited.
	Quota int64 `json:"quota"`

	// PlanID identifies the plan the quota comes from.
	PlanID string `json:"plan_id"`

	// IsNearLimit is true when Quota > 0 and Used/Quota >= 0.9.
	IsNearLimit bool `json:"is_near_limit"`
}

// QuotaAccountant computes per-user space usage against plan limits and
// performs the admission check that guards uploads.
//
// Admission Races:
//
// Two concurrent uploads could both pass the check before either's size is
// persisted, jointly overshooting the quota. The accountant closes this
// window with a per-user mutex: the Service holds the user's admission lock
// across check + insert, serializing admissions for one user while leaving
// different users fully concurrent.
type QuotaAccountant struct {
	entries EntryStore
	plans   PlanResolver

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewQuotaAccountant creates an accountant over the given entry store and
// plan resolver.
func NewQuotaAccountant(entries EntryStore, plans PlanResolver) *QuotaAccountant {
	return &QuotaAccountant{
		entries:   entries,
		plans:     plans,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// GetUsage returns the user's current storage consumption and plan bounds.
//
// Used is recomputed from the store on every call rather than maintained as
// a running counter, so it can never drift negative or leak bytes after a
// crashed mutation.
func (a *QuotaAccountant) GetUsage(ctx context.Context, ownerID string) (Usage, error) {
	plan, err := a.plans.PlanFor(ctx, ownerID)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to resolve plan for %s: %w", ownerID, err)
	}

	used, err := a.entries.UsageByOwner(ctx, ownerID)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to compute usage for %s: %w", ownerID, err)
	}

	usage := Usage{
		Used:   used,
		Quota:  plan.StorageLimit,
		PlanID: plan.ID,
	}
	if usage.Quota > 0 {
		usage.IsNearLimit = float64(usage.Used)/float64(usage.Quota) >= nearLimitThreshold
	}

	return usage, nil
}

// CheckAdmission verifies that accepting incomingSize more bytes keeps the
// user within their plan's storage limit. It returns an ErrQuotaExceeded
// domain error carrying the remaining headroom when the check fails.
//
// The check is called synchronously inside CreateFile before any write, with
// the user's admission lock held, so it is close to the mutation it guards.
// Quota is an admission-time bound only: it is not retroactively enforced on
// plan downgrade.
func (a *QuotaAccountant) CheckAdmission(ctx context.Context, ownerID string, incomingSize int64) error {
	if incomingSize < 0 {
		return validation("size must not be negative", "")
	}

	usage, err := a.GetUsage(ctx, ownerID)
	if err != nil {
		return err
	}

	if usage.Quota <= 0 {
		return nil
	}

	if usage.Used+incomingSize > usage.Quota {
		remaining := usage.Quota - usage.Used
		if remaining < 0 {
			remaining = 0
		}
		return &Error{
			Code:    ErrQuotaExceeded,
			Message: fmt.Sprintf("storage quota exceeded: %d bytes remaining, %d requested", remaining, incomingSize),
		}
	}

	return nil
}

// LockAdmission acquires the per-user admission lock and returns the unlock
// function. Locks are created lazily, one per user, and never discarded; the
// map grows with the number of distinct users seen by this process, which is
// bounded in practice by the request working set.
func (a *QuotaAccountant) LockAdmission(ownerID string) func() {
	a.mu.Lock()
	lock, ok := a.userLocks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		a.userLocks[ownerID] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
