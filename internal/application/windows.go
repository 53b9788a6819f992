package application

import "time"

// Guest access windowing. A guest gains the host group's channel role ahead
// of the visited meeting and keeps it briefly afterwards, so pre-meeting
// coordination and follow-up both happen inside the host channel.
const (
	// GuestAccessLead is how long before the visited meeting access opens.
	GuestAccessLead = 6 * 24 * time.Hour
	// GuestAccessGrace is how long after the visited meeting access lasts.
	GuestAccessGrace = 3 * 24 * time.Hour
)

// accessWindow returns the host-meeting interval whose guests should hold
// access right now: meetings from grace ago up to lead ahead.
func accessWindow(now time.Time) (from, to time.Time) {
	return now.Add(-GuestAccessGrace), now.Add(GuestAccessLead)
}
