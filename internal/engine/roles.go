package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/splax/gatehouse/internal/domain"
)

// DefaultRoleCacheTTL bounds how stale the role-hierarchy map may get.
const DefaultRoleCacheTTL = 5 * time.Minute

type roleLevelState struct {
	byName    map[string]int
	byID      map[string]int
	fetchedAt time.Time
}

// RoleLevelCache holds the computed role-hierarchy levels. The state pointer
// is swapped atomically: concurrent readers may observe a stale map within
// the TTL, and a racing double recompute only wastes work.
type RoleLevelCache struct {
	ttl   time.Duration
	state atomic.Pointer[roleLevelState]
}

// NewRoleLevelCache builds a cache with the given TTL; zero or negative
// falls back to the default.
func NewRoleLevelCache(ttl time.Duration) *RoleLevelCache {
	if ttl <= 0 {
		ttl = DefaultRoleCacheTTL
	}
	return &RoleLevelCache{ttl: ttl}
}

func (c *RoleLevelCache) get(now time.Time) *roleLevelState {
	state := c.state.Load()
	if state == nil || now.Sub(state.fetchedAt) > c.ttl {
		return nil
	}
	return state
}

func (c *RoleLevelCache) put(state *roleLevelState) {
	c.state.Store(state)
}

// Invalidate drops the cached hierarchy so the next resolution refetches.
func (c *RoleLevelCache) Invalidate() {
	c.state.Store(nil)
}

// RoleLevels returns the role-name to hierarchy-level map: roots are level 0
// and each child is one deeper. A cache hit still issues one CountRoles
// probe; callers depend on that side effect.
func (e *Engine) RoleLevels(ctx context.Context) (map[string]int, error) {
	state, err := e.roleLevelState(ctx)
	if err != nil {
		return nil, err
	}
	return state.byName, nil
}

func (e *Engine) roleLevelState(ctx context.Context) (*roleLevelState, error) {
	now := e.now()
	if state := e.roles.get(now); state != nil {
		if _, err := e.store.CountRoles(ctx); err != nil {
			return nil, fmt.Errorf("probe roles: %w", err)
		}
		return state, nil
	}
	roles, err := e.store.ListRoles(ctx, maxRoleFetch)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	state := buildRoleLevels(roles, now)
	e.roles.put(state)
	return state, nil
}

// AtLeastAsSenior reports whether a role at levelA outranks or matches one
// at levelB. Lower level means more senior.
func AtLeastAsSenior(levelA, levelB int) bool {
	return levelA <= levelB
}

// buildRoleLevels layers roles breadth-first from the roots. Roles whose
// parent never resolves within the depth bound are dropped. A name mapped by
// several roles keeps its most senior level.
func buildRoleLevels(roles []domain.Role, now time.Time) *roleLevelState {
	children := make(map[string][]domain.Role, len(roles))
	var frontier []domain.Role
	for _, role := range roles {
		if role.ParentID == "" {
			frontier = append(frontier, role)
			continue
		}
		children[role.ParentID] = append(children[role.ParentID], role)
	}

	byName := make(map[string]int, len(roles))
	byID := make(map[string]int, len(roles))
	for depth := 0; depth < maxRoleDepth && len(frontier) > 0; depth++ {
		var next []domain.Role
		for _, role := range frontier {
			if _, seen := byID[role.ID]; seen {
				continue
			}
			byID[role.ID] = depth
			if current, ok := byName[role.Name]; !ok || depth < current {
				byName[role.Name] = depth
			}
			next = append(next, children[role.ID]...)
		}
		frontier = next
	}
	return &roleLevelState{byName: byName, byID: byID, fetchedAt: now}
}
