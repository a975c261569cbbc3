package domain

import "fmt"

// Capability is one of the six permission flags a grant can carry.
type Capability int

const (
	CapabilityView Capability = iota
	CapabilityExecute
	CapabilityCopy
	CapabilityEdit
	CapabilityDelete
	CapabilityShare
)

var capabilityNames = map[Capability]string{
	CapabilityView:    "view",
	CapabilityExecute: "execute",
	CapabilityCopy:    "copy",
	CapabilityEdit:    "edit",
	CapabilityDelete:  "delete",
	CapabilityShare:   "share",
}

var capabilityColumns = map[Capability]string{
	CapabilityView:    "can_view",
	CapabilityExecute: "can_execute",
	CapabilityCopy:    "can_copy",
	CapabilityEdit:    "can_edit",
	CapabilityDelete:  "can_delete",
	CapabilityShare:   "can_share",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// Column returns the permission_grants column holding this capability flag.
func (c Capability) Column() string {
	return capabilityColumns[c]
}

// Elevated reports whether the capability requires admin-or-above seniority
// on a team for team-scoped visibility.
func (c Capability) Elevated() bool {
	return c == CapabilityEdit || c == CapabilityDelete || c == CapabilityShare
}

// ParseCapability maps a wire name to a Capability.
func ParseCapability(s string) (Capability, error) {
	for c, name := range capabilityNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}
