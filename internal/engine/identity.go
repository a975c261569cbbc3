package engine

import "github.com/splax/gatehouse/internal/domain"

// Sentinels holds the three configured sentinel actor ids. They come from
// runtime configuration, not constants; an empty id disables that sentinel.
type Sentinels struct {
	Root     string
	System   string
	Template string
}

// IsRoot reports whether the actor is the root sentinel.
func (s Sentinels) IsRoot(actor string) bool {
	return actor != "" && actor == s.Root
}

// IsSystem reports whether the actor is the system sentinel.
func (s Sentinels) IsSystem(actor string) bool {
	return actor != "" && actor == s.System
}

// IsTemplate reports whether the actor is the template sentinel.
func (s Sentinels) IsTemplate(actor string) bool {
	return actor != "" && actor == s.Template
}

// IsSentinel reports whether the actor is any sentinel identity.
func (s Sentinels) IsSentinel(actor string) bool {
	return s.IsRoot(actor) || s.IsSystem(actor) || s.IsTemplate(actor)
}

// CanAccessSentinelRecord decides access to a record owned or created by a
// sentinel identity. The second return is false when the owner is not a
// sentinel and the ordinary rules apply instead.
//
// Root-owned records belong to root alone. System-owned records are readable
// by everyone and writable only by root/system. Template-owned records allow
// view/copy/share/execute for everyone; edit and delete stay with
// root/system/template.
func (s Sentinels) CanAccessSentinelRecord(actor, owner string, c domain.Capability) (allowed, applies bool) {
	switch {
	case s.IsRoot(owner):
		return s.IsRoot(actor), true
	case s.IsSystem(owner):
		if s.IsRoot(actor) || s.IsSystem(actor) {
			return true, true
		}
		return c == domain.CapabilityView, true
	case s.IsTemplate(owner):
		if s.IsRoot(actor) || s.IsSystem(actor) || s.IsTemplate(actor) {
			return true, true
		}
		return templateCapabilityPublic(c), true
	}
	return false, false
}

// PublicSentinelAllows reports whether a record owned by the given sentinel
// is open to arbitrary non-sentinel actors at the capability.
func (s Sentinels) PublicSentinelAllows(owner string, c domain.Capability) bool {
	switch {
	case s.IsSystem(owner):
		return c == domain.CapabilityView
	case s.IsTemplate(owner):
		return templateCapabilityPublic(c)
	}
	return false
}

func templateCapabilityPublic(c domain.Capability) bool {
	switch c {
	case domain.CapabilityView, domain.CapabilityCopy, domain.CapabilityShare, domain.CapabilityExecute:
		return true
	}
	return false
}
