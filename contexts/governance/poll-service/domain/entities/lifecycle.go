package entities

import "time"

// ReconcileStatus derives the status a poll should have at the given instant.
// It is a pure, idempotent function of (poll, now): every read and write entry
// point applies it before acting, which substitutes for a background scheduler.
//
// Transitions:
//   - scheduled, now within [OpensAt, ClosesAt]  -> open
//   - scheduled or open, now after ClosesAt      -> closed
//
// Draft polls never move on their own, and closed/cancelled are terminal, so a
// manager-forced close is never reopened by the clock.
func ReconcileStatus(poll Poll, now time.Time) (Poll, bool) {
	now = now.UTC()
	switch poll.Status {
	case PollStatusScheduled:
		if now.After(poll.ClosesAt) {
			poll.Status = PollStatusClosed
			return poll, true
		}
		if !now.Before(poll.OpensAt) {
			poll.Status = PollStatusOpen
			return poll, true
		}
	case PollStatusOpen:
		if now.After(poll.ClosesAt) {
			poll.Status = PollStatusClosed
			return poll, true
		}
	}
	return poll, false
}
