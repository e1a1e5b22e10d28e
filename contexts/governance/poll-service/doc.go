// Package pollservice implements the poll lifecycle and tally engine inside
// the governance context.
//
// The module owns poll and option records, the status state machine
// (draft/scheduled/open/closed/cancelled, reconciled lazily on every read and
// write), the one-ballot-per-voter ledger, and visibility-gated tallies with
// quorum evaluation. Identity, the membership roster and notification delivery
// stay behind ports as external collaborators.
package pollservice
