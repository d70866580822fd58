// Package inspection binds inspections to their reminders: validation,
// duplicate guarding, reminder persistence, job registration, the daily
// recurrence sweep and the startup reload scan.
package inspection

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"inspectd/internal/apperr"
	"inspectd/internal/jobs"
	"inspectd/internal/schedule"
	"inspectd/internal/store"
	logx "inspectd/pkg/logx"
)

// minManualMessageLen is the shortest manual message accepted; anything
// shorter carries too little context to send.
const minManualMessageLen = 10

// Config holds the timing knobs of the service.
type Config struct {
	SendHour int            // hour of day reminders fire, default 9
	Location *time.Location // nil means Local
}

// Deps are the collaborating services.
type Deps struct {
	Store store.Store
	Jobs  *jobs.Service
	Email EmailDispatcher
	SMS   SMSDispatcher
}

type Service struct {
	cfg   Config
	st    store.Store
	jobs  *jobs.Service
	email EmailDispatcher
	sms   SMSDispatcher
	log   logx.Logger

	now func() time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if cfg.SendHour <= 0 || cfg.SendHour > 23 {
		cfg.SendHour = 9
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		st:    deps.Store,
		jobs:  deps.Jobs,
		email: deps.Email,
		sms:   deps.SMS,
		log:   log,
		now:   time.Now,
	}
}

// Bind validates the input, creates the inspection with its assignments,
// persists the reminder and registers the send jobs.
//
// The create is best-effort, not atomic: if reminder persistence fails after
// the inspection row exists, the inspection is kept and the error is
// returned. Re-binding the same slot after fixing the cause hits the
// duplicate guard, so the caller rebinds with a corrected reminder through
// the latest-reminder-wins path instead.
func (s *Service) Bind(ctx context.Context, in BindInput) (store.Inspection, error) {
	if err := s.validate(&in); err != nil {
		return store.Inspection{}, err
	}
	due := schedule.Midnight(in.DueDate)

	if _, exists, err := s.st.FindExisting(ctx, in.ClientID, in.AssetID, in.Type, due); err != nil {
		return store.Inspection{}, err
	} else if exists {
		return store.Inspection{}, apperr.Conflictf("inspection already scheduled for client %s asset %s type %s due %s",
			in.ClientID, in.AssetID, in.Type, due.Format("2006-01-02"))
	}

	insp := store.Inspection{
		ID:       uuid.NewString(),
		ClientID: in.ClientID,
		AssetID:  in.AssetID,
		Type:     in.Type,
		Status:   store.StatusScheduled,
		DueDate:  due,
		Location: in.Location,
		Notes:    in.Notes,
	}
	if err := s.st.CreateInspection(ctx, insp); err != nil {
		return store.Inspection{}, err
	}
	if err := s.st.AddInspectionAssignments(ctx, insp.ID, in.InspectorIDs); err != nil {
		s.log.Warn("assignment create failed; inspection kept",
			logx.String("inspection", insp.ID), logx.Err(err))
		return insp, err
	}

	registered := 0
	if len(in.InspectorIDs) > 0 {
		rem := store.Reminder{
			InspectionID:    insp.ID,
			ClientID:        in.ClientID,
			AssetID:         in.AssetID,
			ReminderDate:    due,
			Type:            in.Notification.ReminderType,
			Method:          in.Notification.Method,
			Source:          in.Notification.Source,
			EmailTemplateID: in.Notification.EmailTemplateID,
			SMSTemplateID:   in.Notification.SMSTemplateID,
			ManualMessage:   in.Notification.ManualMessage,
			InspectorIDs:    in.InspectorIDs,
		}
		if err := s.st.CreateReminder(ctx, rem); err != nil {
			s.log.Warn("reminder create failed; inspection kept",
				logx.String("inspection", insp.ID), logx.Err(err))
			return insp, err
		}
		registered = s.registerJobs(rem)
	}
	s.log.Info("inspection bound",
		logx.String("inspection", insp.ID),
		logx.String("client", in.ClientID),
		logx.String("asset", in.AssetID),
		logx.String("type", string(in.Type)),
		logx.String("due", due.Format("2006-01-02")),
		logx.Int("jobs", registered),
	)
	return insp, nil
}

func (s *Service) validate(in *BindInput) error {
	switch {
	case strings.TrimSpace(in.ClientID) == "":
		return apperr.Validationf("client id is required")
	case strings.TrimSpace(in.AssetID) == "":
		return apperr.Validationf("asset id is required")
	case !in.Type.Valid():
		return apperr.Validationf("unknown inspection type %q", in.Type)
	case in.DueDate.IsZero():
		return apperr.Validationf("due date is required")
	}

	// notification config only matters when someone is assigned to act on
	// it; a bare inspection without inspectors carries no reminder
	if len(in.InspectorIDs) == 0 {
		return nil
	}

	n := &in.Notification
	if n.Source == "" {
		n.Source = store.SourceTemplate
	}
	if !n.Method.Valid() {
		return apperr.Validationf("unknown notification method %q", n.Method)
	}
	if !n.Source.Valid() {
		return apperr.Validationf("unknown message source %q", n.Source)
	}
	if n.ReminderType == "" {
		n.ReminderType = schedule.DefaultReminderType(in.Type)
	} else if !n.ReminderType.Valid() {
		return apperr.Validationf("unknown reminder type %q", n.ReminderType)
	}

	switch n.Source {
	case store.SourceManual:
		if utf8.RuneCountInString(strings.TrimSpace(n.ManualMessage)) < minManualMessageLen {
			return apperr.Validationf("manual message must be at least %d characters", minManualMessageLen)
		}
	case store.SourceTemplate:
		if n.Method.WantsEmail() && strings.TrimSpace(n.EmailTemplateID) == "" {
			return apperr.Validationf("email template id is required for template notifications")
		}
		if n.Method.WantsSMS() && strings.TrimSpace(n.SMSTemplateID) == "" {
			return apperr.Validationf("sms template id is required for template notifications")
		}
	}
	return nil
}

// registerJobs schedules the send jobs for a reminder: one at the advance
// lead and one on the due date itself (a single job when the lead is zero).
// Instants already in the past are skipped silently; re-registering a slot
// replaces the previous jobs by name. Returns the number registered.
func (s *Service) registerJobs(rem store.Reminder) int {
	lead := schedule.LeadDays(rem.Type)
	leads := []int{lead}
	if lead != 0 {
		leads = append(leads, 0)
	}

	now := s.now()
	registered := 0
	for _, l := range leads {
		fireAt := schedule.FireTime(rem.ReminderDate, l, s.cfg.SendHour, s.cfg.Location)
		name := jobName(rem.ClientID, rem.AssetID, rem.ReminderDate, l)
		if !fireAt.After(now) {
			s.log.Debug("reminder instant already past; skipping",
				logx.String("job", name), logx.Time("at", fireAt))
			continue
		}
		clientID, assetID, date := rem.ClientID, rem.AssetID, rem.ReminderDate
		err := s.jobs.Schedule(name, fireAt, func(ctx context.Context) error {
			return s.deliver(ctx, clientID, assetID, date)
		})
		if err != nil {
			s.log.Warn("job register failed", logx.String("job", name), logx.Err(err))
			continue
		}
		registered++
	}
	return registered
}

func jobName(clientID, assetID string, date time.Time, leadDays int) string {
	return fmt.Sprintf("reminder:%s:%s:%s:d%d", clientID, assetID, date.Format("2006-01-02"), leadDays)
}
