package models

// Identity answers permission questions for whoever is making a request.
// Every request has one, so checks never need a nil guard.
type Identity interface {
	Can(perm Permission) bool
	IsAdministrator() bool
	IsAnonymous() bool
}

// AnonymousUser is the identity of a caller that presented no credential.
type AnonymousUser struct{}

func (AnonymousUser) Can(Permission) bool   { return false }
func (AnonymousUser) IsAdministrator() bool { return false }
func (AnonymousUser) IsAnonymous() bool     { return true }

var _ Identity = AnonymousUser{}
var _ Identity = (*User)(nil)

// Can reports whether the user's role grants perm. A user whose role is not
// loaded or not assigned behaves as anonymous.
func (u *User) Can(perm Permission) bool {
	if u == nil || u.Role == nil {
		return false
	}
	return u.Role.HasPermission(perm)
}

func (u *User) IsAdministrator() bool {
	return u.Can(PermAdminister)
}

func (u *User) IsAnonymous() bool {
	return u == nil
}
