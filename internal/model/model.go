package model

import "time"

type Role string

const (
	RoleMentor Role = "mentor"
	RoleMentee Role = "mentee"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleMentor, RoleMentee:
		return Role(raw), true
	}
	return "", false
}

type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	ProfilePic   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

// Connection is an accepted (or requested) mentor-mentee pairing. It is
// distinct from a transport connection; messages are only valid between the
// two participants of an accepted pairing.
type Connection struct {
	ID        string
	MentorID  string
	MenteeID  string
	Status    ConnectionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Participants reports whether {a, b} equals {mentor, mentee} in either order.
func (c Connection) Participants(a, b string) bool {
	return (c.MentorID == a && c.MenteeID == b) || (c.MentorID == b && c.MenteeID == a)
}

type Message struct {
	ID           string
	SenderID     string
	ReceiverID   string
	ConnectionID string
	Text         string
	Image        string
	CreatedAt    time.Time
}

type Activity struct {
	ID        string
	UserID    string
	Type      string
	Meta      map[string]string
	CreatedAt time.Time
}
