package inspection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inspectd/internal/schedule"
	"inspectd/internal/store"
	logx "inspectd/pkg/logx"
)

// RunSweep rolls every overdue recurring inspection forward one interval:
// the old row is marked overdue, a new scheduled row is created at the next
// due date with the same assignments, and the latest reminder config of the
// old slot is carried to the new one. Each item is handled independently; a
// failing item is counted and the sweep continues.
func (s *Service) RunSweep(ctx context.Context) (SweepSummary, error) {
	asOf := schedule.Midnight(s.now().In(s.cfg.Location))
	overdue, err := s.st.FindOverdueRecurring(ctx, asOf)
	if err != nil {
		return SweepSummary{}, err
	}

	var sum SweepSummary
	sum.Scanned = len(overdue)
	for _, insp := range overdue {
		if err := s.sweepOne(ctx, insp, &sum); err != nil {
			sum.Errors++
			s.log.Warn("sweep item failed",
				logx.String("inspection", insp.ID),
				logx.String("client", insp.ClientID),
				logx.String("asset", insp.AssetID),
				logx.Err(err),
			)
		}
	}

	s.log.Info("recurrence sweep finished",
		logx.Time("as_of", asOf),
		logx.Int("scanned", sum.Scanned),
		logx.Int("rolled", sum.Rolled),
		logx.Int("skipped", sum.Skipped),
		logx.Int("reminders_carried", sum.RemindersCarried),
		logx.Int("errors", sum.Errors),
	)
	return sum, nil
}

func (s *Service) sweepOne(ctx context.Context, insp store.Inspection, sum *SweepSummary) error {
	next, err := schedule.NextDueDate(insp.Type, insp.DueDate)
	if err != nil {
		return err
	}
	// an unchanged date means the type does not recur
	if next.Equal(schedule.Midnight(insp.DueDate)) {
		sum.Skipped++
		return s.markOverdue(ctx, insp)
	}

	// duplicate guard: a manual rebind may already occupy the next slot
	if _, exists, err := s.st.FindExisting(ctx, insp.ClientID, insp.AssetID, insp.Type, next); err != nil {
		return err
	} else if exists {
		sum.Skipped++
		return s.markOverdue(ctx, insp)
	}

	detail, err := s.st.InspectionDetail(ctx, insp.ID)
	if err != nil {
		return err
	}
	inspectorIDs := make([]string, 0, len(detail.Inspectors))
	for _, c := range detail.Inspectors {
		inspectorIDs = append(inspectorIDs, c.ID)
	}

	rolled := store.Inspection{
		ID:       uuid.NewString(),
		ClientID: insp.ClientID,
		AssetID:  insp.AssetID,
		Type:     insp.Type,
		Status:   store.StatusScheduled,
		DueDate:  next,
		Location: insp.Location,
		Notes:    insp.Notes,
	}
	if err := s.st.CreateInspection(ctx, rolled); err != nil {
		return err
	}
	if err := s.st.AddInspectionAssignments(ctx, rolled.ID, inspectorIDs); err != nil {
		return err
	}
	if err := s.markOverdue(ctx, insp); err != nil {
		return err
	}
	sum.Rolled++

	// carry the latest reminder config of the old slot to the new one
	prev, ok, err := s.st.LatestReminder(ctx, insp.ClientID, insp.AssetID, insp.DueDate)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("no reminder to carry",
			logx.String("inspection", insp.ID),
			logx.String("due", insp.DueDate.Format("2006-01-02")),
		)
		return nil
	}

	carried := store.Reminder{
		InspectionID:    rolled.ID,
		ClientID:        insp.ClientID,
		AssetID:         insp.AssetID,
		ReminderDate:    next,
		Type:            prev.Type,
		Method:          prev.Method,
		Source:          prev.Source,
		EmailTemplateID: prev.EmailTemplateID,
		SMSTemplateID:   prev.SMSTemplateID,
		ManualMessage:   prev.ManualMessage,
		InspectorIDs:    inspectorIDs,
	}
	if err := s.st.CreateReminder(ctx, carried); err != nil {
		return err
	}
	sum.RemindersCarried++
	s.registerJobs(carried)
	return nil
}

// markOverdue flags a past-due scheduled inspection. Terminal statuses
// (completed, cancelled) are left alone; their series still advances.
func (s *Service) markOverdue(ctx context.Context, insp store.Inspection) error {
	if insp.Status != store.StatusScheduled {
		return nil
	}
	return s.st.UpdateInspectionStatus(ctx, insp.ID, store.StatusOverdue)
}

// StartDailySweep registers the sweep as a daily cron job at the given
// HH:MM (scheduler timezone).
func (s *Service) StartDailySweep(atHHMM string) error {
	return s.jobs.AddDaily("recurrence-sweep", atHHMM, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		_, err := s.RunSweep(ctx)
		return err
	})
}
