package model

import (
	"fmt"
	"slices"
	"strings"
)

type Role string

const (
	RoleNone           Role = "none"
	RoleAlumni         Role = "alumni"
	RoleMember         Role = "member"
	RoleDepartmentLead Role = "department_lead"
	RoleBoardFinance   Role = "board_finance"
	RoleBoardInternal  Role = "board_internal"
	RoleBoardExternal  Role = "board_external"
	RoleBoard          Role = "board"
	RoleAdmin          Role = "admin"
)

// Capability tokens checked by Can. CapabilityAll matches every token.
const (
	CapabilityAll = "*"

	CapProfileView     = "profile.view"
	CapDirectoryView   = "directory.view"
	CapEventsView      = "events.view"
	CapEventsSignup    = "events.signup"
	CapEventsManage    = "events.manage"
	CapNewsView        = "news.view"
	CapNewsManage      = "news.manage"
	CapInventoryView   = "inventory.view"
	CapInventoryManage = "inventory.manage"
	CapProjectsView    = "projects.view"
	CapProjectsManage  = "projects.manage"
	CapUsersView       = "users.view"
	CapUsersRoles      = "users.roles"
	CapAlumniValidate  = "alumni.validate"
	CapInvitationsView = "invitations.view"
	CapFinanceManage   = "finance.manage"
	CapPartnersManage  = "partners.manage"
	CapMembersOnboard  = "members.onboard"
)

type roleInfo struct {
	level        int
	superAdmin   bool
	capabilities []string
}

var (
	alumniCaps = []string{CapProfileView, CapDirectoryView, CapNewsView}
	memberCaps = append(slices.Clone(alumniCaps),
		CapEventsView, CapEventsSignup, CapInventoryView, CapProjectsView)
	leadCaps = append(slices.Clone(memberCaps),
		CapEventsManage, CapProjectsManage, CapInventoryManage, CapUsersView)
	boardTierCaps = append(slices.Clone(leadCaps), CapNewsManage, CapInvitationsView)
)

// roleTable is the single source of truth for levels. Levels are persisted
// implicitly through role names and must not be reordered without a data
// migration. The three board positions are peers.
var roleTable = map[Role]roleInfo{
	RoleNone:           {level: 0},
	RoleAlumni:         {level: 10, capabilities: alumniCaps},
	RoleMember:         {level: 20, capabilities: memberCaps},
	RoleDepartmentLead: {level: 30, capabilities: leadCaps},
	RoleBoardFinance:   {level: 40, capabilities: append(slices.Clone(boardTierCaps), CapFinanceManage)},
	RoleBoardInternal:  {level: 40, capabilities: append(slices.Clone(boardTierCaps), CapMembersOnboard, CapAlumniValidate, CapUsersRoles)},
	RoleBoardExternal:  {level: 40, capabilities: append(slices.Clone(boardTierCaps), CapPartnersManage)},
	RoleBoard:          {level: 50, superAdmin: true, capabilities: []string{CapabilityAll}},
	RoleAdmin:          {level: 60, superAdmin: true, capabilities: []string{CapabilityAll}},
}

var roleOrder = []Role{
	RoleNone, RoleAlumni, RoleMember, RoleDepartmentLead,
	RoleBoardFinance, RoleBoardInternal, RoleBoardExternal, RoleBoard, RoleAdmin,
}

type UnknownRoleError struct {
	Value string
}

func (e *UnknownRoleError) Error() string {
	names := make([]string, 0, len(roleOrder))
	for _, r := range Roles() {
		names = append(names, string(r))
	}
	return fmt.Sprintf("unknown role %q, expected one of %s", e.Value, strings.Join(names, ", "))
}

// ParseRole accepts only the exact stored names.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleTable[r]; !ok {
		return "", &UnknownRoleError{Value: s}
	}
	return r, nil
}

// Roles returns every role from least to most privileged.
func Roles() []Role {
	return slices.Clone(roleOrder)
}

func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// Level returns the numeric privilege level. Unknown roles rank below none.
func (r Role) Level() int {
	info, ok := roleTable[r]
	if !ok {
		return -1
	}
	return info.level
}

func (r Role) IsSuperAdmin() bool {
	return roleTable[r].superAdmin
}

func (r Role) Capabilities() []string {
	return slices.Clone(roleTable[r].capabilities)
}

func (r Role) HasCapability(capability string) bool {
	caps := roleTable[r].capabilities
	return slices.Contains(caps, CapabilityAll) || slices.Contains(caps, capability)
}

// AtLeast reports whether r satisfies a requirement of required.
func (r Role) AtLeast(required Role) bool {
	if !r.Valid() {
		return false
	}
	return r.IsSuperAdmin() || r.Level() >= required.Level()
}

func (r Role) String() string {
	return string(r)
}

// EffectiveRole is the role used for permission decisions. Alumni that have
// not been validated by the board are treated as having no role.
func EffectiveRole(role Role, alumniValidated bool) Role {
	if role == RoleAlumni && !alumniValidated {
		return RoleNone
	}
	return role
}
