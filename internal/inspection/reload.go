package inspection

import (
	"context"

	"inspectd/internal/schedule"
	"inspectd/internal/store"
	logx "inspectd/pkg/logx"
)

// ReloadJobs rebuilds the in-memory send jobs from persisted reminders
// after a restart. Only future-dated slots are considered; fire instants
// already past are dropped and counted, never sent late.
func (s *Service) ReloadJobs(ctx context.Context) (int, error) {
	asOf := schedule.Midnight(s.now().In(s.cfg.Location))
	rems, err := s.st.FutureReminders(ctx, asOf)
	if err != nil {
		return 0, err
	}

	// keep only the newest reminder per (client, asset, date) slot; older
	// rows are superseded by a later rebind
	type slot struct{ client, asset, date string }
	latest := make(map[slot]store.Reminder, len(rems))
	order := make([]slot, 0, len(rems))
	for _, r := range rems {
		k := slot{r.ClientID, r.AssetID, r.ReminderDate.Format("2006-01-02")}
		if _, ok := latest[k]; !ok {
			order = append(order, k)
		}
		latest[k] = r // rows arrive oldest-first; last write is the newest
	}

	registered := 0
	for _, k := range order {
		registered += s.registerJobs(latest[k])
	}

	s.log.Info("reminder jobs reloaded",
		logx.Int("reminders", len(rems)),
		logx.Int("slots", len(order)),
		logx.Int("jobs", registered),
	)
	return registered, nil
}
