package domain

type Role string

const (
	RolePassenger Role = "PASSENGER"
	RoleAdmin     Role = "ADMIN"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor may act on a resource owned by ownerID.
func (a Actor) Owns(ownerID int64) bool {
	return a.UserID == ownerID
}
