package store

import (
	"context"
	"strings"
	"time"

	"inspectd/internal/apperr"
)

// Config configures storage.
type Config struct {
	Path        string        `json:"path"`
	BusyTimeout time.Duration `json:"busy_timeout"` // 0 means default
}

// InspectionType determines the recurrence interval of an inspection.
type InspectionType string

const (
	TypeWeekly     InspectionType = "weekly"
	TypeMonthly    InspectionType = "monthly"
	TypeQuarterly  InspectionType = "quarterly"
	TypeSemiAnnual InspectionType = "semi_annual"
	TypeAnnual     InspectionType = "annual"
	TypeOneTime    InspectionType = "one_time"
)

// Recurring reports whether inspections of this type roll over to a new
// due date once the current one passes.
func (t InspectionType) Recurring() bool { return t != TypeOneTime }

func (t InspectionType) Valid() bool {
	switch t {
	case TypeWeekly, TypeMonthly, TypeQuarterly, TypeSemiAnnual, TypeAnnual, TypeOneTime:
		return true
	}
	return false
}

type InspectionStatus string

const (
	StatusScheduled  InspectionStatus = "scheduled"
	StatusInProgress InspectionStatus = "in_progress"
	StatusCompleted  InspectionStatus = "completed"
	StatusCancelled  InspectionStatus = "cancelled"
	StatusOverdue    InspectionStatus = "overdue"
)

// ReminderType encodes how far ahead of the due date the reminder fires.
type ReminderType string

const (
	ReminderDueDate      ReminderType = "due_date"
	ReminderDays2Before  ReminderType = "days_2_before"
	ReminderDays15Before ReminderType = "days_15_before"
	ReminderDays30Before ReminderType = "days_30_before"
)

func (r ReminderType) Valid() bool {
	switch r {
	case ReminderDueDate, ReminderDays2Before, ReminderDays15Before, ReminderDays30Before:
		return true
	}
	return false
}

// NotificationMethod selects the delivery channels of a reminder.
type NotificationMethod string

const (
	MethodEmail NotificationMethod = "email"
	MethodSMS   NotificationMethod = "sms"
	MethodBoth  NotificationMethod = "both"
)

func (m NotificationMethod) Valid() bool {
	switch m {
	case MethodEmail, MethodSMS, MethodBoth:
		return true
	}
	return false
}

func (m NotificationMethod) WantsEmail() bool { return m == MethodEmail || m == MethodBoth }
func (m NotificationMethod) WantsSMS() bool   { return m == MethodSMS || m == MethodBoth }

// MessageSource selects where the reminder's message body comes from.
type MessageSource string

const (
	SourceTemplate MessageSource = "template"
	SourceManual   MessageSource = "manual"
)

func (s MessageSource) Valid() bool { return s == SourceTemplate || s == SourceManual }

// Inspection is one scheduled visit of an asset.
type Inspection struct {
	ID        string
	ClientID  string
	AssetID   string
	Type      InspectionType
	Status    InspectionStatus
	DueDate   time.Time // date precision; stored as yyyy-mm-dd
	Location  string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Reminder is the persisted notification intent attached to an inspection.
type Reminder struct {
	ID              string
	InspectionID    string
	ClientID        string
	AssetID         string
	ReminderDate    time.Time // the inspection due date the reminder is about
	Type            ReminderType
	Method          NotificationMethod
	Source          MessageSource
	EmailTemplateID string
	SMSTemplateID   string
	ManualMessage   string
	InspectorIDs    []string
	CreatedAt       time.Time
}

// Contact is a notifiable party (client or inspector).
type Contact struct {
	ID    string
	Name  string
	Email string
	Phone string
}

type Asset struct {
	ID       string
	ClientID string
	Name     string
}

// EmailTemplate references a provider-side template by its provider id.
type EmailTemplate struct {
	ID         string
	ProviderID string
	Subject    string
}

type SMSTemplate struct {
	ID   string
	Body string
}

// InspectionDetail joins an inspection with everything the dispatcher
// needs: client contact, asset name and assigned inspector contacts.
type InspectionDetail struct {
	Inspection Inspection
	Client     Contact
	AssetName  string
	Inspectors []Contact
}

// Store is the persistence API used by the binder, the sweep and the
// reload scan.
type Store interface {
	UpsertClient(ctx context.Context, c Contact) error
	UpsertInspector(ctx context.Context, c Contact) error
	UpsertAsset(ctx context.Context, a Asset) error
	UpsertEmailTemplate(ctx context.Context, t EmailTemplate) error
	UpsertSMSTemplate(ctx context.Context, t SMSTemplate) error

	CreateInspection(ctx context.Context, in Inspection) error
	AddInspectionAssignments(ctx context.Context, inspectionID string, inspectorIDs []string) error
	UpdateInspectionStatus(ctx context.Context, id string, status InspectionStatus) error
	FindExisting(ctx context.Context, clientID, assetID string, typ InspectionType, due time.Time) (Inspection, bool, error)
	FindOverdueRecurring(ctx context.Context, asOf time.Time) ([]Inspection, error)
	InspectionDetail(ctx context.Context, inspectionID string) (InspectionDetail, error)

	CreateReminder(ctx context.Context, r Reminder) error
	LatestReminder(ctx context.Context, clientID, assetID string, reminderDate time.Time) (Reminder, bool, error)
	FutureReminders(ctx context.Context, asOf time.Time) ([]Reminder, error)

	EmailTemplateByID(ctx context.Context, id string) (EmailTemplate, error)
	SMSTemplateByID(ctx context.Context, id string) (SMSTemplate, error)

	Close() error
}

func normalizeID(id string) string { return strings.TrimSpace(id) }

func requireID(kind, id string) error {
	if normalizeID(id) == "" {
		return apperr.Validationf("%s id is required", kind)
	}
	return nil
}
