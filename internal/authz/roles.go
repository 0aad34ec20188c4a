package authz

const (
	RoleStudent     = 10
	RoleCoach       = 20
	RoleCoordinator = 30
)

// CanActForOthers reports whether the role may mutate tasks it does not own.
func CanActForOthers(roleID int) bool {
	return roleID == RoleCoach || roleID == RoleCoordinator
}

// CanAssign reports whether the role may create tasks for a student.
func CanAssign(roleID int) bool {
	return roleID == RoleCoach || roleID == RoleCoordinator
}
