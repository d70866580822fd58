package jobs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	logx "inspectd/pkg/logx"
)

// AddDaily registers a cron job firing every day at HH:MM in the scheduler
// timezone. Upsert by name.
func (s *Service) AddDaily(name, atHHMM string, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	spec := fmt.Sprintf("%d %d * * *", m, h)
	return s.addCron(name, spec, job)
}

func (s *Service) addCron(name, spec string, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCronLocked(name)
	s.defs = append(s.defs, cronDef{name: name, spec: spec, job: job})
	if s.c == nil {
		// not started yet; registered when Start() runs
		return nil
	}
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.log.Error("cron register failed", logx.String("job", name), logx.String("spec", spec), logx.Any("err", err))
		return err
	}
	s.log.Debug("cron registered", logx.String("job", name), logx.String("spec", spec))
	return nil
}

// Call with s.mu held and s.c non-nil.
func (s *Service) addCronLocked(d *cronDef) error {
	name := d.name
	run := d.job
	eid, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(task{name: name, run: run})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

func (s *Service) removeCronLocked(name string) bool {
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
