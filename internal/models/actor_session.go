package models

// ActorRole identifies which side of the marketplace an actor is on
type ActorRole string

const (
	RoleStudent    ActorRole = "student"
	RoleInstructor ActorRole = "instructor"
)

// ActorSession represents an authenticated student or instructor
type ActorSession struct {
	ActorID   string    `json:"actorId"`
	Role      ActorRole `json:"role"`
	Name      string    `json:"name"`
	ExpiresAt int64     `json:"expiresAt"`
	IssuedAt  int64     `json:"issuedAt"`
}

// IsStudent reports whether the actor is a student
func (s *ActorSession) IsStudent() bool {
	return s.Role == RoleStudent
}

// IsInstructor reports whether the actor is an instructor
func (s *ActorSession) IsInstructor() bool {
	return s.Role == RoleInstructor
}

// IssueSessionPayload is the payload for minting an actor session token
type IssueSessionPayload struct {
	ActorID string    `json:"actorId" binding:"required,max=100"`
	Role    ActorRole `json:"role" binding:"required,oneof=student instructor"`
	Name    string    `json:"name" binding:"max=200"`
}

// IssueSessionResponse carries a freshly minted session token
type IssueSessionResponse struct {
	Token     string       `json:"token"`
	Session   ActorSession `json:"session"`
	ExpiresIn int          `json:"expiresIn"` // seconds
}
