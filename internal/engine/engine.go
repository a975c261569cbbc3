// Package engine implements row-level access control: point decisions for a
// single resource instance and equivalent filter predicates for bulk reads.
// Decisions combine ownership, hierarchical team membership, role seniority,
// explicit time-limited grants and delegated permission references, plus
// three sentinel identities with override semantics.
//
// The engine is synchronous and stateless per call. It never opens its own
// transaction and performs no writes; the only shared mutable state is the
// role-hierarchy cache, which is swapped atomically and may serve results up
// to its TTL stale.
package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/splax/gatehouse/internal/descriptor"
	"github.com/splax/gatehouse/internal/repository"
)

// Traversal bounds. The team and role graphs are forests, but traversal is
// depth-capped regardless so one bad row cannot stall the hot path.
const (
	maxTeamAncestry = 5
	maxRoleDepth    = 10
	maxRoleFetch    = 1000
)

var (
	// ErrCircularReference marks a reference cycle in instance data or
	// type declarations. It is a modeling bug, not an access decision.
	ErrCircularReference = errors.New("engine: circular permission reference")
	// ErrNilArgument marks a missing required argument.
	ErrNilArgument = errors.New("engine: required argument missing")
	// ErrUnknownType marks a resource type absent from the registry.
	ErrUnknownType = errors.New("engine: unknown resource type")
)

// Result is the outcome class of a point decision. NotFound is distinct from
// Denied so callers choose how much to reveal to unauthorized requesters.
type Result int

const (
	ResultGranted Result = iota
	ResultDenied
	ResultNotFound
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultGranted:
		return "granted"
	case ResultDenied:
		return "denied"
	case ResultNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Decision is a point-check outcome with a human-readable reason.
type Decision struct {
	Result  Result
	Message string
}

// Granted reports whether the decision allows the operation.
func (d Decision) Granted() bool {
	return d.Result == ResultGranted
}

func granted(msg string) Decision  { return Decision{Result: ResultGranted, Message: msg} }
func denied(msg string) Decision   { return Decision{Result: ResultDenied, Message: msg} }
func notFound(msg string) Decision { return Decision{Result: ResultNotFound, Message: msg} }
func failure(msg string) Decision  { return Decision{Result: ResultError, Message: msg} }

// Engine evaluates access decisions against a store and a static descriptor
// registry.
type Engine struct {
	store     repository.Store
	registry  *descriptor.Registry
	sentinels Sentinels
	roles     *RoleLevelCache
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs an Engine. The role cache is injected so lifecycle and
// invalidation stay testable.
func New(store repository.Store, registry *descriptor.Registry, sentinels Sentinels, roles *RoleLevelCache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if roles == nil {
		roles = NewRoleLevelCache(DefaultRoleCacheTTL)
	}
	return &Engine{
		store:     store,
		registry:  registry,
		sentinels: sentinels,
		roles:     roles,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the engine's time source. Tests use this to exercise
// expiry and cache TTL behavior.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Sentinels returns the configured sentinel identities.
func (e *Engine) Sentinels() Sentinels {
	return e.sentinels
}
