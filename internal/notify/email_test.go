package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

// fakeEmailSender records sends and answers based on a per-address script.
type fakeEmailSender struct {
	name string

	mu    sync.Mutex
	sends []EmailMessage
	fail  map[string]error // address -> error (nil entry means success)
}

func (f *fakeEmailSender) Name() string { return f.name }

func (f *fakeEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, msg)
	return f.fail[msg.To.Address]
}

func (f *fakeEmailSender) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	for i, m := range f.sends {
		out[i] = m.To.Address
	}
	return out
}

func mkRecipients(n int) []Recipient {
	out := make([]Recipient, n)
	for i := range out {
		out[i] = Recipient{Name: fmt.Sprintf("r%d", i), Address: fmt.Sprintf("r%d@test", i)}
	}
	return out
}

func TestDispatchOneResultPerRecipient(t *testing.T) {
	primary := &fakeEmailSender{name: "primary", fail: map[string]error{}}
	d, err := NewEmailDispatcher(primary, nil, EmailDispatcherConfig{BatchSize: 10, RetryMax: 1}, logx.Nop())
	require.NoError(t, err)

	rcpts := mkRecipients(25)
	results := d.Dispatch(context.Background(), EmailContent{Subject: "s", Body: "b"}, rcpts)
	require.Len(t, results, 25)
	for i, res := range results {
		require.Equal(t, rcpts[i].Address, res.Recipient.Address, "results must keep input order")
		require.NoError(t, res.Err)
		require.Equal(t, "primary", res.Provider)
	}
	require.Len(t, primary.sentTo(), 25)
}

func TestDispatchUnauthorizedPartitionGoesToFallback(t *testing.T) {
	unauthorized := map[string]error{
		"r1@test": apperr.UnauthorizedRecipientf("rejected"),
		"r4@test": apperr.UnauthorizedRecipientf("rejected"),
	}
	primary := &fakeEmailSender{name: "primary", fail: unauthorized}
	fallback := &fakeEmailSender{name: "smtp", fail: map[string]error{}}
	d, err := NewEmailDispatcher(primary, fallback, EmailDispatcherConfig{BatchSize: 2, RetryMax: 3, RetryBase: time.Millisecond}, logx.Nop())
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), EmailContent{Subject: "s", Body: "b"}, mkRecipients(6))
	require.Len(t, results, 6)

	// exactly the unauthorized subset reaches the fallback, once each
	require.ElementsMatch(t, []string{"r1@test", "r4@test"}, fallback.sentTo())
	for _, res := range results {
		require.NoError(t, res.Err)
		if _, ok := unauthorized[res.Recipient.Address]; ok {
			require.Equal(t, "smtp", res.Provider)
		} else {
			require.Equal(t, "primary", res.Provider)
		}
	}

	// unauthorized is deterministic: no retries against the primary
	count := 0
	for _, addr := range primary.sentTo() {
		if addr == "r1@test" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestDispatchTransientFailureRetriesThenFails(t *testing.T) {
	primary := &fakeEmailSender{name: "primary", fail: map[string]error{
		"r0@test": apperr.Providerf("status 500"),
	}}
	fallback := &fakeEmailSender{name: "smtp", fail: map[string]error{}}
	d, err := NewEmailDispatcher(primary, fallback, EmailDispatcherConfig{BatchSize: 50, RetryMax: 3, RetryBase: time.Millisecond}, logx.Nop())
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), EmailContent{Body: "b"}, mkRecipients(1))
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	require.True(t, apperr.IsProvider(results[0].Err))
	// a plain provider failure is not the fallback's business
	require.Empty(t, fallback.sentTo())
	// retried RetryMax times
	require.Len(t, primary.sentTo(), 3)
}

func TestDispatchFallbackFailureIsReported(t *testing.T) {
	primary := &fakeEmailSender{name: "primary", fail: map[string]error{
		"r0@test": apperr.UnauthorizedRecipientf("rejected"),
	}}
	fallback := &fakeEmailSender{name: "smtp", fail: map[string]error{
		"r0@test": apperr.Providerf("relay refused"),
	}}
	d, err := NewEmailDispatcher(primary, fallback, EmailDispatcherConfig{RetryBase: time.Millisecond}, logx.Nop())
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), EmailContent{Body: "b"}, mkRecipients(1))
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	require.Equal(t, "smtp", results[0].Provider)
}

func TestNewEmailDispatcherRequiresPrimary(t *testing.T) {
	_, err := NewEmailDispatcher(nil, nil, EmailDispatcherConfig{}, logx.Nop())
	require.Error(t, err)
}

func TestDedupRecipients(t *testing.T) {
	in := []Recipient{
		{Name: "a", Address: "A@test"},
		{Name: "b", Address: "b@test"},
		{Name: "a2", Address: "a@test"},
		{Name: "blank", Address: "  "},
		{Name: "b2", Address: " B@test "},
	}
	out := DedupRecipients(in)
	require.Len(t, out, 2)
	require.Equal(t, "A@test", out[0].Address)
	require.Equal(t, "b@test", out[1].Address)
}
