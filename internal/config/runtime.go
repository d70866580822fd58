package config

import (
	"fmt"
	"strings"
	"time"
)

// Runtime is the parsed, defaulted view of Config: duration strings become
// time.Duration, the timezone is resolved and sweep_at is split into
// hour/minute. Build it once per (re)load via Config.Runtime().
type Runtime struct {
	Workers   int
	QueueSize int
	Location  *time.Location
	SendHour  int
	SweepHour int
	SweepMin  int

	StorageBusyTimeout time.Duration

	EmailBatchSize  int
	EmailRetryMax   int
	EmailRetryBase  time.Duration
	EmailAPITimeout time.Duration
	SMSTimeout      time.Duration
	SMSRatePerSec   int
}

// Runtime validates the config and resolves defaults.
func (c *Config) Runtime() (Runtime, error) {
	r := Runtime{
		Workers:        c.Scheduler.Workers,
		QueueSize:      c.Scheduler.QueueSize,
		SendHour:       9,
		SweepHour:      2,
		EmailBatchSize: c.Email.BatchSize,
		EmailRetryMax:  c.Email.RetryMax,
		SMSRatePerSec:  c.SMS.RatePerSec,
	}
	if r.Workers <= 0 {
		r.Workers = 2
	}
	if r.QueueSize <= 0 {
		r.QueueSize = 256
	}
	if r.EmailBatchSize <= 0 {
		r.EmailBatchSize = 50
	}
	if r.EmailRetryMax <= 0 {
		r.EmailRetryMax = 3
	}
	if r.SMSRatePerSec <= 0 {
		r.SMSRatePerSec = 1
	}

	if c.Scheduler.SendHour != nil {
		h := *c.Scheduler.SendHour
		if h < 0 || h > 23 {
			return Runtime{}, fmt.Errorf("scheduler.send_hour: %d out of range [0,23]", h)
		}
		r.SendHour = h
	}

	if s := strings.TrimSpace(c.Scheduler.SweepAt); s != "" {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return Runtime{}, fmt.Errorf("scheduler.sweep_at: invalid time %q (want HH:MM)", s)
		}
		r.SweepHour, r.SweepMin = t.Hour(), t.Minute()
	}

	loc := time.Local
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Runtime{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	r.Location = loc

	var err error
	if r.StorageBusyTimeout, err = parseDuration("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		return Runtime{}, err
	}
	if r.EmailRetryBase, err = parseDuration("email.retry_base", c.Email.RetryBase, 2*time.Second); err != nil {
		return Runtime{}, err
	}
	if r.EmailAPITimeout, err = parseDuration("email.primary.timeout", c.Email.Primary.Timeout, 15*time.Second); err != nil {
		return Runtime{}, err
	}
	if r.SMSTimeout, err = parseDuration("sms.timeout", c.SMS.Timeout, 15*time.Second); err != nil {
		return Runtime{}, err
	}
	return r, nil
}

func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
