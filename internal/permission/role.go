package permission

// Role is a document role. The zero value is RoleNone. Roles are totally
// ordered by rank: viewer < annotator < editor < owner.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleAnnotator
	RoleEditor
	RoleOwner
)

var roleNames = map[Role]string{
	RoleNone:      "none",
	RoleViewer:    "viewer",
	RoleAnnotator: "annotator",
	RoleEditor:    "editor",
	RoleOwner:     "owner",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "none"
}

// Rank returns the position of the role in the privilege order, 0 for none.
func (r Role) Rank() int {
	if r < RoleNone || r > RoleOwner {
		return 0
	}
	return int(r)
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank() && r.Rank() > 0
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParseRole maps a stored or client supplied role token to a Role. The
// second return value is false for anything other than the four known roles.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "viewer":
		return RoleViewer, true
	case "annotator":
		return RoleAnnotator, true
	case "editor":
		return RoleEditor, true
	case "owner":
		return RoleOwner, true
	default:
		return RoleNone, false
	}
}

// Normalize parses a role token, falling back to viewer for unknown input.
func Normalize(s string) Role {
	if role, ok := ParseRole(s); ok {
		return role
	}
	return RoleViewer
}
