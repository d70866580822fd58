package notify

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Recipient is one notifiable party. Address is an email address for the
// email channel and an E.164 phone number for SMS.
type Recipient struct {
	Name    string
	Address string
}

// Result is the per-recipient outcome of a dispatch. Err is nil on success;
// Provider names the provider that produced the final outcome.
type Result struct {
	Recipient Recipient
	Channel   Channel
	Provider  string
	Err       error
}

// Summary folds results into counts for logging.
func Summarize(results []Result) (sent, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// EmailContent is the channel-independent payload of an email send. Either
// TemplateID is set (provider-side template with variables) or Body carries
// a manual message.
type EmailContent struct {
	Subject    string
	TemplateID string
	Variables  map[string]string
	Body       string
}

// EmailMessage is one concrete send: content addressed to one recipient.
type EmailMessage struct {
	To Recipient
	EmailContent
}

// Facts carries the inspection details appended to short manual SMS
// messages and offered to templates as variables.
type Facts struct {
	AssetName string
	ClientID  string
	DueDate   time.Time
	Location  string
}

// DedupRecipients returns the input with duplicate addresses (case-folded,
// trimmed) removed, keeping first occurrence order. Recipients with an empty
// address are dropped.
func DedupRecipients(in []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(strings.TrimSpace(r.Address))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
