package entity

import "time"

type Presence struct {
	UserID   string    `json:"user_id" firestore:"userId"`
	Online   bool      `json:"online" firestore:"online"`
	LastSeen time.Time `json:"last_seen" firestore:"lastSeen"`
}

// OnlineAt reports the effective online flag at now. A positive staleAfter
// treats a record whose lastSeen is older than that window as offline.
func (p *Presence) OnlineAt(now time.Time, staleAfter time.Duration) bool {
	if p == nil || !p.Online {
		return false
	}
	if staleAfter > 0 && now.Sub(p.LastSeen) > staleAfter {
		return false
	}
	return true
}
