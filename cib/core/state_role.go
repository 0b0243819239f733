package core

// Role is the replication role of the local node. Exactly one node in
// the cluster holds RolePrimary at a time; assignment is external.
type Role int

const (
	RoleSecondary Role = 0
	RolePrimary   Role = 1
)

var roleString = []string{
	"secondary",
	"primary",
}

func (role Role) String() string {
	return roleString[role]
}

func (role Role) IsPrimary() bool {
	return role == RolePrimary
}
