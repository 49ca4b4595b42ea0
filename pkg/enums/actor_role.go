package enums

import "slices"

// ActorRole is the opaque role attached to every engine call.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "customer"
	ActorRoleStaff    ActorRole = "staff"
	ActorRoleManager  ActorRole = "manager"
	ActorRoleDriver   ActorRole = "driver"
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleSystem   ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleStaff,
	ActorRoleManager,
	ActorRoleDriver,
	ActorRoleAdmin,
	ActorRoleSystem,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, r)
}

// IsStaff reports whether the role belongs to warehouse or office staff.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleStaff || r == ActorRoleManager || r == ActorRoleAdmin
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return parse(value, validActorRoles, "actor role")
}
