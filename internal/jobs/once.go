package jobs

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	logx "inspectd/pkg/logx"
)

// Schedule registers a one-shot job keyed by name, firing at the given
// instant. Registering an existing name replaces the previous job and fire
// time: last write wins, at most one pending job per name. An instant in the
// past fires immediately.
func (s *Service) Schedule(name string, at time.Time, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if at.IsZero() {
		return errors.New("fire time required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	runAt := at.In(loc)

	s.tmu.Lock()
	// upsert: stop the existing timer with the same name
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
	}
	// bump version so stale callbacks from the replaced timer are ignored
	ver := s.onceVer[name] + 1
	s.onceVer[name] = ver
	s.onceAt[name] = runAt
	s.onceJob[name] = job

	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	localName := name
	localVer := ver
	timer := time.AfterFunc(delay, func() {
		s.tmu.Lock()
		curVer := s.onceVer[localName]
		jobNow := s.onceJob[localName]
		if curVer != localVer || jobNow == nil {
			// replaced or cancelled while the callback was in flight
			s.tmu.Unlock()
			return
		}
		delete(s.timers, localName)
		delete(s.onceAt, localName)
		delete(s.onceJob, localName)
		delete(s.onceVer, localName)
		s.tmu.Unlock()

		s.enqueue(task{name: localName, run: jobNow})
	})
	s.timers[name] = timer
	s.tmu.Unlock()

	s.log.Debug("job scheduled",
		logx.String("job", name),
		logx.Time("at", runAt),
		logx.Duration("in", delay),
	)
	return nil
}

// Cancel removes a pending job by name. Cancelling an unknown name is a
// no-op and returns false.
func (s *Service) Cancel(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false

	s.tmu.Lock()
	if t, ok := s.timers[name]; ok {
		_ = t.Stop()
		delete(s.timers, name)
		removed = true
	}
	if _, ok := s.onceAt[name]; ok {
		delete(s.onceAt, name)
		removed = true
	}
	if _, ok := s.onceJob[name]; ok {
		delete(s.onceJob, name)
		removed = true
	}
	delete(s.onceVer, name)
	s.tmu.Unlock()

	if removed {
		s.log.Debug("job cancelled", logx.String("job", name))
	}
	return removed
}

// JobInfo describes one pending one-shot job.
type JobInfo struct {
	Name string
	At   time.Time
}

// Pending returns the currently registered one-shot jobs, for diagnostics.
func (s *Service) Pending() []JobInfo {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	out := make([]JobInfo, 0, len(s.onceAt))
	for name, at := range s.onceAt {
		out = append(out, JobInfo{Name: name, At: at})
	}
	return out
}
