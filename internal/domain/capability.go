package domain

import (
	"fmt"
	"strings"
)

type Capability string

const (
	CanCreateApplication Capability = "create"
	CanAssess            Capability = "assess"
	CanApprove           Capability = "approve"
	CanRecordPayment     Capability = "record_payment"
	CanIssue             Capability = "issue"
	CanRelease           Capability = "release"
	CanDeleteAny         Capability = "delete_any"

	// CanAll satisfies every capability check. It never satisfies a state precondition.
	CanAll Capability = "*"
)

var knownCapabilities = map[Capability]struct{}{
	CanCreateApplication: {},
	CanAssess:            {},
	CanApprove:           {},
	CanRecordPayment:     {},
	CanIssue:             {},
	CanRelease:           {},
	CanDeleteAny:         {},
	CanAll:               {},
}

type Capabilities map[Capability]struct{}

func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

func (c Capabilities) Has(capability Capability) bool {
	if _, ok := c[CanAll]; ok {
		return true
	}
	_, ok := c[capability]
	return ok
}

func (c Capabilities) HasAny(capabilities ...Capability) bool {
	for _, capability := range capabilities {
		if c.Has(capability) {
			return true
		}
	}
	return false
}

// Caller is the authenticated actor of a guarded operation.
type Caller struct {
	UserID       uint64
	Roles        []string
	Capabilities Capabilities
}

// RoleCapabilities maps configured role names to capability sets. The
// lifecycle only ever asks about capabilities, never role names.
type RoleCapabilities map[string]Capabilities

const DefaultRoleCapabilities = "SuperAdmin=*;" +
	"Admin=create,assess,approve,record_payment,issue,release;" +
	"Approver=approve;" +
	"Assessor=assess;" +
	"Application Creator=create;" +
	"Cashier=record_payment"

// ParseRoleCapabilities reads "Role=cap,cap;Role=cap". Role names are matched
// case-insensitively.
func ParseRoleCapabilities(s string) (RoleCapabilities, error) {
	mapping := make(RoleCapabilities)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		role, caps, ok := strings.Cut(entry, "=")
		role = strings.TrimSpace(role)
		if !ok || role == "" {
			return nil, fmt.Errorf("invalid role capability entry %q", entry)
		}

		set := make(Capabilities)
		for _, raw := range strings.Split(caps, ",") {
			capability := Capability(strings.TrimSpace(raw))
			if capability == "" {
				continue
			}
			if _, known := knownCapabilities[capability]; !known {
				return nil, fmt.Errorf("unknown capability %q for role %q", capability, role)
			}
			set[capability] = struct{}{}
		}
		mapping[strings.ToLower(role)] = set
	}

	return mapping, nil
}

// Resolve unions the capabilities of every known role. Unknown roles grant nothing.
func (r RoleCapabilities) Resolve(roles []string) Capabilities {
	set := make(Capabilities)
	for _, role := range roles {
		for capability := range r[strings.ToLower(strings.TrimSpace(role))] {
			set[capability] = struct{}{}
		}
	}
	return set
}

func (r RoleCapabilities) Caller(userID uint64, roles []string) Caller {
	return Caller{
		UserID:       userID,
		Roles:        roles,
		Capabilities: r.Resolve(roles),
	}
}

