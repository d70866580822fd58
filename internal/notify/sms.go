package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	logx "inspectd/pkg/logx"
)

// SMSSender is one SMS provider.
type SMSSender interface {
	Name() string
	Send(ctx context.Context, to, body string) error
}

// shortSMSLimit is the length under which a manual message is considered
// too terse to stand alone, and gets the inspection facts appended.
const shortSMSLimit = 120

// SMSDispatcher sends SMS sequentially, paced by a token bucket so a big
// recipient list does not burst into carrier rate limits.
type SMSDispatcher struct {
	sender  SMSSender
	limiter *rate.Limiter
	log     logx.Logger
}

// NewSMSDispatcher paces sends at ratePerSec (default 1/s, burst 1).
func NewSMSDispatcher(sender SMSSender, ratePerSec int, log logx.Logger) (*SMSDispatcher, error) {
	if sender == nil {
		return nil, errors.New("sms dispatcher: sender required")
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMSDispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		log:     log,
	}, nil
}

// Dispatch sends body to every recipient in order, one at a time. Exactly
// one Result per deduplicated recipient; a failed send does not stop the
// rest. Context cancellation marks the remaining recipients as failed.
func (d *SMSDispatcher) Dispatch(ctx context.Context, body string, rcpts []Recipient) []Result {
	rcpts = DedupRecipients(rcpts)
	results := make([]Result, len(rcpts))

	for i, r := range rcpts {
		results[i] = Result{Recipient: r, Channel: ChannelSMS, Provider: d.sender.Name()}
		if err := d.limiter.Wait(ctx); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Err = d.sender.Send(ctx, r.Address, body)
		if results[i].Err != nil {
			d.log.Warn("sms send failed",
				logx.String("to", MaskPhone(r.Address)),
				logx.Err(results[i].Err),
			)
		}
	}

	sent, failed := Summarize(results)
	d.log.Info("sms dispatch finished",
		logx.Int("recipients", len(rcpts)),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
	)
	return results
}

// ComposeSMS builds the SMS body from a manual message and the inspection
// facts. Messages shorter than 120 characters get the asset and due date
// appended so the recipient can act without further lookup.
func ComposeSMS(manual string, facts Facts) string {
	manual = strings.TrimSpace(manual)
	if utf8.RuneCountInString(manual) >= shortSMSLimit {
		return manual
	}
	var b strings.Builder
	b.WriteString(manual)
	if manual != "" {
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "Inspection of %s due %s.", facts.AssetName, facts.DueDate.Format("Jan 2, 2006"))
	if loc := strings.TrimSpace(facts.Location); loc != "" {
		fmt.Fprintf(&b, " Location: %s.", loc)
	}
	return b.String()
}
