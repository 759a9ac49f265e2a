package models

import "time"

// Relation is how a guestbook signer knows the site owner.
type Relation string

const (
	RelationFriend    Relation = "friend"
	RelationFamily    Relation = "family"
	RelationColleague Relation = "colleague"
	RelationStudent   Relation = "student"
	RelationTeacher   Relation = "teacher"
	RelationRecruiter Relation = "recruiter"
	RelationStranger  Relation = "stranger"
)

var Relations = []Relation{
	RelationFriend, RelationFamily, RelationColleague, RelationStudent,
	RelationTeacher, RelationRecruiter, RelationStranger,
}

// Visitor is one guestbook signature as stored in Postgres.
type Visitor struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Relation  Relation  `json:"relation" db:"relation"`
	Email     string    `json:"email,omitempty" db:"email"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	EmailSent bool      `json:"email_sent" db:"email_sent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PublicVisitor is the slice of a Visitor anyone may see.
type PublicVisitor struct {
	Name      string    `json:"name"`
	Relation  Relation  `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}

type SignVisitorRequest struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Email    string `json:"email"`
}

type RelationCount struct {
	Relation Relation `json:"relation"`
	Count    int      `json:"count"`
}

type VisitorStats struct {
	Total     int             `json:"total"`
	Today     int             `json:"today"`
	ThisWeek  int             `json:"this_week"`
	Relations []RelationCount `json:"relation_breakdown"`
}

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}
