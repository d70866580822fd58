package notify

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

// TwilioConfig configures the SMS provider (Twilio-compatible REST API).
type TwilioConfig struct {
	BaseURL    string // default https://api.twilio.com
	AccountSID string
	AuthToken  string
	From       string // E.164 sender number
	Timeout    time.Duration
}

type Twilio struct {
	base string
	sid  string
	tok  string
	from string
	hc   *http.Client
	log  logx.Logger
}

// NewTwilio fails fast on missing credentials.
func NewTwilio(cfg TwilioConfig, log logx.Logger) (*Twilio, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, errors.New("twilio: account sid required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errors.New("twilio: auth token required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("twilio: from number required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.twilio.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Twilio{
		base: base,
		sid:  cfg.AccountSID,
		tok:  cfg.AuthToken,
		from: cfg.From,
		hc:   &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

func (c *Twilio) Name() string { return "twilio" }

func (c *Twilio) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("From", c.from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := c.base + "/2010-04-01/Accounts/" + url.PathEscape(c.sid) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperr.ProviderWrap(err, "twilio: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.sid, c.tok)

	resp, err := c.hc.Do(req)
	if err != nil {
		return apperr.ProviderWrap(err, "twilio: send")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Debug("sms accepted", logx.String("to", MaskPhone(to)))
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return apperr.Providerf("twilio: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

// MaskPhone hides all but the last four digits so phone numbers never land
// in logs verbatim.
func MaskPhone(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
