package status

import "time"

// ErrOffline is the Result.Error of a cycle skipped for lack of connectivity.
const ErrOffline = "offline"

// Result is the outcome of one sync cycle. It is never mutated after being
// published.
type Result struct {
	Success             bool   `json:"success"`
	MessagesDownloaded  int    `json:"messagesDownloaded"`
	MessagesUploaded    int    `json:"messagesUploaded"`
	TeamsDownloaded     int    `json:"teamsDownloaded"`
	TeamsUploaded       int    `json:"teamsUploaded"`
	ChatRoomsDownloaded int    `json:"chatRoomsDownloaded"`
	Error               string `json:"error,omitempty"`

	// Pending and Failed count outbox entries left after the cycle.
	Pending    int       `json:"pending"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// OfflineResult is what a sync attempt returns when the device is offline.
func OfflineResult(now time.Time) Result {
	return Result{Success: false, Error: ErrOffline, StartedAt: now, FinishedAt: now}
}

// Transferred reports whether the cycle moved any record in either direction.
func (r Result) Transferred() bool {
	return r.MessagesDownloaded+r.MessagesUploaded+r.TeamsDownloaded+r.TeamsUploaded+r.ChatRoomsDownloaded > 0
}

// Sealed returns r with its invariants enforced: a failed result always
// carries an error and a successful one never does.
func (r Result) Sealed() Result {
	if r.Success {
		r.Error = ""
	} else if r.Error == "" {
		r.Error = "sync failed"
	}
	return r
}
