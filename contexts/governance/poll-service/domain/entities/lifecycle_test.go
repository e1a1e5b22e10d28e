package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconcileStatusTransitions(t *testing.T) {
	opens := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	closes := time.Date(2026, time.March, 3, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		status      PollStatus
		now         time.Time
		wantStatus  PollStatus
		wantChanged bool
	}{
		{
			name:       "scheduled before opens stays scheduled",
			status:     PollStatusScheduled,
			now:        opens.Add(-time.Minute),
			wantStatus: PollStatusScheduled,
		},
		{
			name:        "scheduled at exactly opens becomes open",
			status:      PollStatusScheduled,
			now:         opens,
			wantStatus:  PollStatusOpen,
			wantChanged: true,
		},
		{
			name:        "scheduled inside window becomes open",
			status:      PollStatusScheduled,
			now:         opens.Add(time.Hour),
			wantStatus:  PollStatusOpen,
			wantChanged: true,
		},
		{
			name:       "scheduled at exactly closes still opens",
			status:     PollStatusScheduled,
			now:        closes,
			wantStatus: PollStatusOpen,
			// closes-at itself is inside the voting window
			wantChanged: true,
		},
		{
			name:        "scheduled past closes jumps straight to closed",
			status:      PollStatusScheduled,
			now:         closes.Add(time.Second),
			wantStatus:  PollStatusClosed,
			wantChanged: true,
		},
		{
			name:       "open at exactly closes stays open",
			status:     PollStatusOpen,
			now:        closes,
			wantStatus: PollStatusOpen,
		},
		{
			name:        "open past closes becomes closed",
			status:      PollStatusOpen,
			now:         closes.Add(time.Nanosecond),
			wantStatus:  PollStatusClosed,
			wantChanged: true,
		},
		{
			name:       "draft never moves on its own",
			status:     PollStatusDraft,
			now:        closes.Add(time.Hour),
			wantStatus: PollStatusDraft,
		},
		{
			name:       "closed is terminal",
			status:     PollStatusClosed,
			now:        opens.Add(time.Hour),
			wantStatus: PollStatusClosed,
		},
		{
			name:       "cancelled is terminal",
			status:     PollStatusCancelled,
			now:        opens.Add(time.Hour),
			wantStatus: PollStatusCancelled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			poll := Poll{
				PollID:   "poll-1",
				OpensAt:  opens,
				ClosesAt: closes,
				Status:   tc.status,
			}
			got, changed := ReconcileStatus(poll, tc.now)
			require.Equal(t, tc.wantStatus, got.Status)
			require.Equal(t, tc.wantChanged, changed)
		})
	}
}

func TestReconcileStatusIsIdempotent(t *testing.T) {
	opens := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	closes := opens.Add(48 * time.Hour)
	now := closes.Add(time.Hour)

	poll := Poll{PollID: "poll-1", OpensAt: opens, ClosesAt: closes, Status: PollStatusScheduled}

	once, changed := ReconcileStatus(poll, now)
	require.True(t, changed)
	require.Equal(t, PollStatusClosed, once.Status)

	twice, changed := ReconcileStatus(once, now)
	require.False(t, changed)
	require.Equal(t, once, twice)
}

func TestReconcileStatusNeverReopensForcedClose(t *testing.T) {
	opens := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	closes := opens.Add(48 * time.Hour)

	poll := Poll{
		PollID:   "poll-1",
		OpensAt:  opens,
		ClosesAt: closes,
		Status:   PollStatusClosed,
		ClosedBy: "manager-1",
	}

	got, changed := ReconcileStatus(poll, opens.Add(time.Hour))
	require.False(t, changed)
	require.Equal(t, PollStatusClosed, got.Status)
}

func TestCancellable(t *testing.T) {
	require.True(t, Poll{Status: PollStatusDraft}.Cancellable())
	require.True(t, Poll{Status: PollStatusScheduled}.Cancellable())
	require.True(t, Poll{Status: PollStatusOpen}.Cancellable())
	require.False(t, Poll{Status: PollStatusClosed}.Cancellable())
	require.False(t, Poll{Status: PollStatusCancelled}.Cancellable())
}
