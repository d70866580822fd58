package config

import (
	"sort"
	"strings"

	logx "inspectd/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (tokens, passwords) are reported
// only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !schedulerEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.Int("scheduler.queue_size", newCfg.Scheduler.QueueSize),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.sweep_at", strings.TrimSpace(newCfg.Scheduler.SweepAt)),
		)
	}

	if oldCfg.Email != newCfg.Email {
		changed = append(changed, "email")
		attrs = append(attrs,
			logx.String("email.from", newCfg.Email.From),
			logx.Int("email.batch_size", newCfg.Email.BatchSize),
			logx.Bool("email.primary_token_set", strings.TrimSpace(newCfg.Email.Primary.Token) != ""),
			logx.Bool("email.fallback_enabled", newCfg.Email.Fallback.Enabled),
		)
	}

	if oldCfg.SMS != newCfg.SMS {
		changed = append(changed, "sms")
		attrs = append(attrs,
			logx.String("sms.from", newCfg.SMS.From),
			logx.Int("sms.rate_per_sec", newCfg.SMS.RatePerSec),
			logx.Bool("sms.auth_token_set", strings.TrimSpace(newCfg.SMS.AuthToken) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func schedulerEqual(a, b SchedulerConfig) bool {
	if a.Workers != b.Workers || a.QueueSize != b.QueueSize ||
		a.Timezone != b.Timezone || a.SweepAt != b.SweepAt {
		return false
	}
	switch {
	case a.SendHour == nil && b.SendHour == nil:
		return true
	case a.SendHour == nil || b.SendHour == nil:
		return false
	default:
		return *a.SendHour == *b.SendHour
	}
}
