package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of platform profiles a respondent or viewer can have.
type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleInstructor  Role = "INSTRUCTOR"
	RoleCoordinator Role = "COORDINATOR"
	RoleAdmin       Role = "ADMIN"
)

// Capability is something a role may be allowed to do.
type Capability int

const (
	// CapRespond allows answering forms that target the role.
	CapRespond Capability = iota
	// CapViewClassReports allows aggregated reports for the viewer's own classes.
	CapViewClassReports
	// CapViewFormReports allows aggregated reports across every class of a form.
	CapViewFormReports
	// CapViewAudit allows resolving response groups back to respondents.
	CapViewAudit
)

var capabilities = map[Role]map[Capability]bool{
	RoleStudent: {
		CapRespond: true,
	},
	RoleInstructor: {
		CapRespond:          true,
		CapViewClassReports: true,
	},
	RoleCoordinator: {
		CapRespond:          true,
		CapViewClassReports: true,
		CapViewFormReports:  true,
	},
	RoleAdmin: {
		CapViewClassReports: true,
		CapViewFormReports:  true,
		CapViewAudit:        true,
	},
}

// ParseRole accepts role names case-insensitively.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := capabilities[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return role, nil
}

// Can reports whether the role holds the capability.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

func (r Role) String() string {
	return string(r)
}
