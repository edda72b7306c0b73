package presence

import (
	"time"

	"staffpresence/internal/directory"
)

// Posting is a short-lived "where am I" note for one identifier.
type Posting struct {
	ID                 string         `json:"id"`
	Identifier         string         `json:"identifier"`
	Location           string         `json:"location"`
	Reason             string         `json:"reason"`
	PostedAt           time.Time      `json:"posted_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	RoleAtPosting      directory.Role `json:"role_at_posting"`
	PostedByIdentifier string         `json:"posted_by_identifier"`
	PostedByName       string         `json:"posted_by_name"`
}

// Supersedes reports whether p should replace cur as the current posting.
// The later PostedAt wins; on an exact tie the higher-ranked role wins, and
// with equal rank the newer arrival (p) wins.
func (p Posting) Supersedes(cur Posting) bool {
	if !p.PostedAt.Equal(cur.PostedAt) {
		return p.PostedAt.After(cur.PostedAt)
	}
	return p.RoleAtPosting.Rank() >= cur.RoleAtPosting.Rank()
}

// ExpiredAt reports whether the posting's window has lapsed at now.
func (p Posting) ExpiredAt(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// View is a posting as seen at read time.
type View struct {
	Posting
	Expired bool `json:"is_expired"`
}
