package inspection

import (
	"context"
	"time"

	"inspectd/internal/store"

	"inspectd/internal/notify"
)

// NotificationConfig describes how the reminder for a bound inspection is
// delivered.
type NotificationConfig struct {
	Method store.NotificationMethod
	Source store.MessageSource

	// ReminderType picks the advance-notice window. Zero value means the
	// default for the inspection type.
	ReminderType store.ReminderType

	EmailTemplateID string
	SMSTemplateID   string
	ManualMessage   string
}

// BindInput is the request to schedule an inspection with its reminder.
type BindInput struct {
	ClientID     string
	AssetID      string
	Type         store.InspectionType
	DueDate      time.Time
	Location     string
	Notes        string
	InspectorIDs []string
	Notification NotificationConfig
}

// SweepSummary reports what one recurrence sweep did.
type SweepSummary struct {
	Scanned          int // overdue recurring inspections examined
	Rolled           int // new inspections created at the next due date
	Skipped          int // next slot already existed
	RemindersCarried int // reminder configs copied to the new slot
	Errors           int // items that failed; sweep continued past them
}

// EmailDispatcher is the slice of the email pipeline the binder needs.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, content notify.EmailContent, rcpts []notify.Recipient) []notify.Result
}

// SMSDispatcher is the slice of the SMS pipeline the binder needs.
type SMSDispatcher interface {
	Dispatch(ctx context.Context, body string, rcpts []notify.Recipient) []notify.Result
}
