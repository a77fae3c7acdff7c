package entity

// User is the minimal user record the approval core reads to resolve a caller
type User struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Role       Role   `json:"role" db:"role"`
	LarkOpenID string `json:"lark_open_id,omitempty" db:"lark_open_id"`
}

// Caller is the explicit identity threaded into every core operation
type Caller struct {
	UserID int64
	Role   Role
}

// CallerOf returns the caller identity of a user
func CallerOf(u *User) Caller {
	return Caller{UserID: u.ID, Role: u.Role}
}

// CanActFor reports whether the caller is the creator or holds an elevated role
func (c Caller) CanActFor(creatorID int64) bool {
	return c.UserID == creatorID || c.Role.IsElevated()
}
