// internal/models/reviewer.go
package models

// Role is a reviewing officer class. Roles form the jurisdictional approval
// chain: a constituency officer decides level 1, a district officer level 2,
// and so on, with supervisors able to override queue assignment anywhere.
type Role string

const (
	RoleConstituencyOfficer Role = "constituency_officer"
	RoleDistrictOfficer     Role = "district_officer"
	RoleRegionalOfficer     Role = "regional_officer"
	RoleNationalAdmin       Role = "national_admin"
	RoleSupervisor          Role = "supervisor"
)

// Supervisory reports whether the role may reassign claimed work.
func (r Role) Supervisory() bool {
	return r == RoleSupervisor || r == RoleNationalAdmin
}

// Reviewer is the resolved identity of a reviewing officer: role plus the
// jurisdiction slice they are scoped to. Empty jurisdiction fields mean the
// scope is unbounded at that tier (a regional officer carries no district).
type Reviewer struct {
	ID           string       `json:"id"`
	Role         Role         `json:"role"`
	Jurisdiction Jurisdiction `json:"jurisdiction"`
}
