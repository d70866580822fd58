package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Email     EmailConfig     `json:"email"`
	SMS       SMSConfig       `json:"sms"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the in-process job scheduler and the daily sweep.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - timezone: system local
//   - send_hour: 9 (reminders fire at 09:00)
//   - sweep_at: "02:00"
type SchedulerConfig struct {
	Workers   int    `json:"workers,omitempty"`
	QueueSize int    `json:"queue_size,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	SendHour  *int   `json:"send_hour,omitempty"`
	SweepAt   string `json:"sweep_at,omitempty"`
}

// EmailConfig controls the email dispatch pipeline.
//
// Primary is the HTTP API provider; Fallback is an SMTP relay used for
// recipients the primary rejects as unauthorized.
type EmailConfig struct {
	From      string `json:"from"`
	FromName  string `json:"from_name,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"` // default 50

	RetryMax  int    `json:"retry_max,omitempty"`  // default 3
	RetryBase string `json:"retry_base,omitempty"` // default "2s"

	Primary  EmailAPIConfig `json:"primary"`
	Fallback SMTPConfig     `json:"fallback"`
}

type EmailAPIConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"` // do not log
	Timeout string `json:"timeout,omitempty"`
}

type SMTPConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"` // host:port
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
}

// SMSConfig controls the SMS dispatch pipeline (Twilio-compatible REST API).
type SMSConfig struct {
	BaseURL    string `json:"base_url,omitempty"`
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"` // do not log
	From       string `json:"from"`
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 1
	Timeout    string `json:"timeout,omitempty"`
}
