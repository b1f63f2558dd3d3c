// Package identity defines the caller identity that the role gate resolves once at the
// boundary and hands explicitly to every service operation.
package identity

import "fmt"

type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleLibrarian Role = "librarian"
	RoleMember    Role = "member"
)

// Caller is a tagged identity: exactly one of Librarian(id), Member(id) or Anonymous.
type Caller struct {
	role Role
	id   int64
}

// Anonymous is the caller with no resolved identity.
var Anonymous = Caller{role: RoleAnonymous}

func Librarian(id int64) Caller {
	return Caller{role: RoleLibrarian, id: id}
}

func Member(id int64) Caller {
	return Caller{role: RoleMember, id: id}
}

// Parse builds a Caller from a role name and numeric id, as carried in a token.
func Parse(role string, id int64) (Caller, error) {
	switch Role(role) {
	case RoleLibrarian:
		return Librarian(id), nil
	case RoleMember:
		return Member(id), nil
	case RoleAnonymous, "":
		return Anonymous, nil
	default:
		return Anonymous, fmt.Errorf("identity: unknown role %q", role)
	}
}

func (c Caller) Role() Role {
	if c.role == "" {
		return RoleAnonymous
	}
	return c.role
}

// ID is the librarian or member id; zero for anonymous callers.
func (c Caller) ID() int64 {
	return c.id
}

func (c Caller) LibrarianID() (int64, bool) {
	return c.id, c.role == RoleLibrarian
}

func (c Caller) MemberID() (int64, bool) {
	return c.id, c.role == RoleMember
}

func (c Caller) IsLibrarian() bool { return c.role == RoleLibrarian }

func (c Caller) IsMember() bool { return c.role == RoleMember }

func (c Caller) IsAnonymous() bool { return c.Role() == RoleAnonymous }

// CanAccessMember reports whether the caller may act on the given member's records:
// librarians on anyone, members only on themselves.
func (c Caller) CanAccessMember(memberID int64) bool {
	switch c.role {
	case RoleLibrarian:
		return true
	case RoleMember:
		return c.id == memberID
	}
	return false
}

func (c Caller) String() string {
	if c.IsAnonymous() {
		return string(RoleAnonymous)
	}
	return fmt.Sprintf("%s(%d)", c.role, c.id)
}
