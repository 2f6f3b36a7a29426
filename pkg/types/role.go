package types

// RoleKind is the closed set of roles an account can hold
type RoleKind int

const (
	RoleNone RoleKind = iota
	RolePatient
	RoleDoctor
	RoleAdmin
)

// String returns the wire name of the role
func (k RoleKind) String() string {
	switch k {
	case RolePatient:
		return "patient"
	case RoleDoctor:
		return "doctor"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// MarshalText encodes the role by name
func (k RoleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseRoleTag maps the contract's role tag to a RoleKind
func ParseRoleTag(tag string) RoleKind {
	switch tag {
	case "patient", "Patient", "PATIENT":
		return RolePatient
	case "doctor", "Doctor", "DOCTOR":
		return RoleDoctor
	case "admin", "Admin", "ADMIN":
		return RoleAdmin
	default:
		return RoleNone
	}
}

// Role is the resolved role of a connected account
type Role struct {
	Kind     RoleKind `json:"kind"`
	Address  string   `json:"address"`
	ID       uint64   `json:"id,omitempty"`
	Approved bool     `json:"approved,omitempty"`
}

// IsPatient reports whether the role is a registered patient
func (r Role) IsPatient() bool { return r.Kind == RolePatient }

// IsApprovedDoctor reports whether the role is a doctor approved by the admin
func (r Role) IsApprovedDoctor() bool { return r.Kind == RoleDoctor && r.Approved }

// IsAdmin reports whether the role is the contract administrator
func (r Role) IsAdmin() bool { return r.Kind == RoleAdmin }
