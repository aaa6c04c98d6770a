// Package lifecycle holds the permit application state graph and the
// capability required for each edge.
package lifecycle

import (
	"github.com/fazamuttaqien/permitting/internal/domain"
	"github.com/fazamuttaqien/permitting/pkg/common"
)

type Edge struct {
	From domain.Status
	To   domain.Status
}

type Rule struct {
	// Any one of these capabilities allows the edge.
	Capabilities []domain.Capability
	Action       string
}

// Transitions is the complete state graph. ASSESSED -> ASSESSED is the
// re-assessment edge that replaces the fee set.
var Transitions = map[Edge]Rule{
	{domain.StatusPending, domain.StatusAssessed}:          {Capabilities: []domain.Capability{domain.CanAssess}, Action: domain.AuditAssess},
	{domain.StatusAssessed, domain.StatusAssessed}:         {Capabilities: []domain.Capability{domain.CanAssess}, Action: domain.AuditAssess},
	{domain.StatusAssessed, domain.StatusPendingApproval}:  {Capabilities: []domain.Capability{domain.CanAssess}, Action: domain.AuditSubmit},
	{domain.StatusPendingApproval, domain.StatusApproved}:  {Capabilities: []domain.Capability{domain.CanApprove}, Action: domain.AuditApprove},
	{domain.StatusPendingApproval, domain.StatusRejected}:  {Capabilities: []domain.Capability{domain.CanApprove}, Action: domain.AuditReject},
	{domain.StatusApproved, domain.StatusPaid}:             {Capabilities: []domain.Capability{domain.CanRecordPayment}, Action: domain.AuditPaid},
	{domain.StatusPaid, domain.StatusIssued}:               {Capabilities: []domain.Capability{domain.CanIssue}, Action: domain.AuditIssue},
	{domain.StatusIssued, domain.StatusReleased}:           {Capabilities: []domain.Capability{domain.CanRelease}, Action: domain.AuditRelease},
}

// IsTerminal reports whether s has no outgoing edge.
func IsTerminal(s domain.Status) bool {
	return s == domain.StatusRejected || s == domain.StatusReleased
}

// Check validates the edge first and the caller's capabilities second, so a
// SuperAdmin still gets a conflict for an edge that does not exist.
func Check(applicationID uint64, from, to domain.Status, caps domain.Capabilities) (Rule, error) {
	rule, ok := Transitions[Edge{from, to}]
	if !ok {
		return Rule{}, common.NewTransitionConflict(applicationID, string(from), string(to))
	}

	if !caps.HasAny(rule.Capabilities...) {
		return Rule{}, common.NewAuthorization("application", applicationID,
			"caller may not move application from %s to %s", from, to)
	}

	return rule, nil
}
