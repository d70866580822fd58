package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

// EmailSender is one email provider.
type EmailSender interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailDispatcherConfig tunes batching and retry.
type EmailDispatcherConfig struct {
	BatchSize int           // default 50
	RetryMax  int           // attempts against the primary, default 3
	RetryBase time.Duration // linear backoff unit, default 2s
}

// EmailDispatcher fans an email out to a recipient list: batches run
// concurrently, each recipient gets primary-with-retry and, for
// unauthorized rejections, one fallback attempt.
type EmailDispatcher struct {
	primary  EmailSender
	fallback EmailSender // may be nil
	cfg      EmailDispatcherConfig
	log      logx.Logger
}

func NewEmailDispatcher(primary, fallback EmailSender, cfg EmailDispatcherConfig, log logx.Logger) (*EmailDispatcher, error) {
	if primary == nil {
		return nil, errors.New("email dispatcher: primary sender required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EmailDispatcher{primary: primary, fallback: fallback, cfg: cfg, log: log}, nil
}

// Dispatch sends content to every recipient and returns exactly one Result
// per (deduplicated) recipient, in input order. It never returns early: a
// failing recipient is recorded and the rest of the batch continues.
func (d *EmailDispatcher) Dispatch(ctx context.Context, content EmailContent, rcpts []Recipient) []Result {
	rcpts = DedupRecipients(rcpts)
	results := make([]Result, len(rcpts))

	for start := 0; start < len(rcpts); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(rcpts) {
			end = len(rcpts)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.sendOne(ctx, EmailMessage{To: rcpts[i], EmailContent: content})
			}(i)
		}
		wg.Wait()
	}

	sent, failed := Summarize(results)
	d.log.Info("email dispatch finished",
		logx.Int("recipients", len(rcpts)),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
	)
	return results
}

func (d *EmailDispatcher) sendOne(ctx context.Context, msg EmailMessage) Result {
	res := Result{Recipient: msg.To, Channel: ChannelEmail, Provider: d.primary.Name()}
	res.Err = d.sendWithRetry(ctx, msg)
	if res.Err == nil {
		return res
	}
	if d.fallback != nil && apperr.IsUnauthorizedRecipient(res.Err) {
		d.log.Debug("recipient unauthorized at primary; trying fallback",
			logx.String("to", msg.To.Address),
			logx.String("fallback", d.fallback.Name()),
		)
		res.Provider = d.fallback.Name()
		res.Err = d.fallback.Send(ctx, msg)
		return res
	}
	return res
}

// sendWithRetry attempts the primary up to RetryMax times with linear
// backoff (attempt x RetryBase). Unauthorized rejections are deterministic
// and not retried.
func (d *EmailDispatcher) sendWithRetry(ctx context.Context, msg EmailMessage) error {
	var last error
	for attempt := 1; attempt <= d.cfg.RetryMax; attempt++ {
		last = d.primary.Send(ctx, msg)
		if last == nil || apperr.IsUnauthorizedRecipient(last) {
			return last
		}
		d.log.Warn("email send failed",
			logx.String("to", msg.To.Address),
			logx.Int("attempt", attempt),
			logx.Err(last),
		)
		if attempt == d.cfg.RetryMax {
			break
		}
		select {
		case <-ctx.Done():
			return apperr.ProviderWrap(ctx.Err(), "email send aborted")
		case <-time.After(time.Duration(attempt) * d.cfg.RetryBase):
		}
	}
	return last
}
