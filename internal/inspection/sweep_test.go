package inspection

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectd/internal/store"
)

func TestSweepRollsOverdueForward(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	// weekly inspection two days overdue: its next slot (+7d) is still in
	// the future, so carried jobs stay pending for the assertions below
	past := scheduleMidnight(testNow.AddDate(0, 0, -2))
	f.svc.now = func() time.Time { return past }
	in := baseInput(past)
	in.Type = store.TypeWeekly
	bound, err := f.svc.Bind(ctx, in)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return testNow }

	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Scanned)
	require.Equal(t, 1, sum.Rolled)
	require.Equal(t, 1, sum.RemindersCarried)
	require.Equal(t, 0, sum.Errors)

	// old row marked overdue
	old, err := f.st.InspectionDetail(ctx, bound.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusOverdue, old.Inspection.Status)

	// new row one interval later, scheduled, same assignments
	next := past.AddDate(0, 0, 7)
	rolled, ok, err := f.st.FindExisting(ctx, "c1", "a1", store.TypeWeekly, next)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.StatusScheduled, rolled.Status)
	detail, err := f.st.InspectionDetail(ctx, rolled.ID)
	require.NoError(t, err)
	require.Len(t, detail.Inspectors, 2)

	// reminder carried to the new slot with the same config
	rem, ok, err := f.st.LatestReminder(ctx, "c1", "a1", next)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rolled.ID, rem.InspectionID)
	require.Equal(t, store.MethodBoth, rem.Method)
	require.Contains(t, rem.ManualMessage, "boiler inspection")

	// jobs registered for the new slot
	found := false
	for _, j := range f.jobs.Pending() {
		if strings.Contains(j.Name, next.Format("2006-01-02")) {
			found = true
		}
	}
	require.True(t, found)
}

func TestSweepAdvancesCompletedRecurring(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	past := scheduleMidnight(testNow.AddDate(0, 0, -2))
	f.svc.now = func() time.Time { return past }
	in := baseInput(past)
	in.Type = store.TypeWeekly
	bound, err := f.svc.Bind(ctx, in)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return testNow }

	// completion before the sweep must not kill the series
	require.NoError(t, f.st.UpdateInspectionStatus(ctx, bound.ID, store.StatusCompleted))

	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Scanned)
	require.Equal(t, 1, sum.Rolled)

	// successor created one interval later
	next := past.AddDate(0, 0, 7)
	rolled, ok, err := f.st.FindExisting(ctx, "c1", "a1", store.TypeWeekly, next)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, store.StatusScheduled, rolled.Status)

	// the completed row keeps its status
	old, err := f.st.InspectionDetail(ctx, bound.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, old.Inspection.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	past := scheduleMidnight(testNow.AddDate(0, 0, -2))
	f.svc.now = func() time.Time { return past }
	in := baseInput(past)
	in.Type = store.TypeWeekly
	_, err := f.svc.Bind(ctx, in)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return testNow }

	_, err = f.svc.RunSweep(ctx)
	require.NoError(t, err)

	// second run: the old row is overdue now, nothing left to scan
	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Scanned)
}

func TestSweepSkipsOccupiedNextSlot(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	past := scheduleMidnight(testNow.AddDate(0, 0, -2))
	next := past.AddDate(0, 0, 7)

	// overdue weekly inspection without going through Bind
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "old-1", ClientID: "c1", AssetID: "a1",
		Type: store.TypeWeekly, Status: store.StatusScheduled, DueDate: past,
	}))
	// the next slot is already occupied by a manual rebind
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "managed-1", ClientID: "c1", AssetID: "a1",
		Type: store.TypeWeekly, Status: store.StatusScheduled, DueDate: next,
	}))

	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 0, sum.Rolled)

	old, err := f.st.InspectionDetail(ctx, "old-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusOverdue, old.Inspection.Status)
}

func TestSweepContinuesPastFailingItem(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	past := scheduleMidnight(testNow.AddDate(0, 0, -2))
	require.NoError(t, f.st.UpsertAsset(ctx, store.Asset{ID: "a2", ClientID: "c1", Name: "Crane 1"}))
	// a row with a type the calculator rejects fails its item but must not
	// stop the sweep
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "bad-1", ClientID: "c1", AssetID: "a1",
		Type: store.InspectionType("biweekly"), Status: store.StatusScheduled, DueDate: past,
	}))
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "ok-1", ClientID: "c1", AssetID: "a2",
		Type: store.TypeWeekly, Status: store.StatusScheduled, DueDate: past,
	}))

	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Scanned)
	require.Equal(t, 1, sum.Rolled)
	require.Equal(t, 1, sum.Errors)
}

func TestSweepMonthEndClamping(t *testing.T) {
	now := time.Date(2025, time.February, 10, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, now)
	ctx := context.Background()

	jan31 := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "clamp-1", ClientID: "c1", AssetID: "a1",
		Type: store.TypeMonthly, Status: store.StatusScheduled, DueDate: jan31,
	}))

	sum, err := f.svc.RunSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Rolled)

	feb28 := time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)
	_, ok, err := f.st.FindExisting(ctx, "c1", "a1", store.TypeMonthly, feb28)
	require.NoError(t, err)
	require.True(t, ok, "monthly roll from Jan 31 must clamp to Feb 28")
}

func TestReloadJobsRebuildsFutureSlots(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	future := scheduleMidnight(testNow.AddDate(0, 0, 20))
	pastDate := scheduleMidnight(testNow.AddDate(0, 0, -3))

	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "ins-f", ClientID: "c1", AssetID: "a1",
		Type: store.TypeMonthly, Status: store.StatusScheduled, DueDate: future,
	}))
	require.NoError(t, f.st.CreateReminder(ctx, store.Reminder{
		ID: "r-f", InspectionID: "ins-f", ClientID: "c1", AssetID: "a1",
		ReminderDate: future, Type: store.ReminderDays15Before,
		Method: store.MethodEmail, Source: store.SourceManual,
		ManualMessage: "Monthly inspection coming up.",
	}))
	require.NoError(t, f.st.CreateInspection(ctx, store.Inspection{
		ID: "ins-p", ClientID: "c1", AssetID: "a1",
		Type: store.TypeMonthly, Status: store.StatusScheduled, DueDate: pastDate,
	}))
	require.NoError(t, f.st.CreateReminder(ctx, store.Reminder{
		ID: "r-p", InspectionID: "ins-p", ClientID: "c1", AssetID: "a1",
		ReminderDate: pastDate, Type: store.ReminderDueDate,
		Method: store.MethodEmail, Source: store.SourceManual,
		ManualMessage: "Should not be reloaded.",
	}))

	registered, err := f.svc.ReloadJobs(ctx)
	require.NoError(t, err)
	// future slot: 15-days-before instant (Sep 3) and due-date instant
	require.Equal(t, 2, registered)
	require.Len(t, f.jobs.Pending(), 2)
}
