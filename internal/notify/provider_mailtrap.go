package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

// MailtrapConfig configures the primary email provider (Mailtrap-compatible
// send API).
type MailtrapConfig struct {
	BaseURL   string
	Token     string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// Mailtrap sends email through a JSON send API. One request per recipient.
type Mailtrap struct {
	base  string
	token string
	from  apiAddress
	hc    *http.Client
	log   logx.Logger
}

type apiAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type apiSendRequest struct {
	From              apiAddress        `json:"from"`
	To                []apiAddress      `json:"to"`
	Subject           string            `json:"subject,omitempty"`
	Text              string            `json:"text,omitempty"`
	TemplateUUID      string            `json:"template_uuid,omitempty"`
	TemplateVariables map[string]string `json:"template_variables,omitempty"`
}

// NewMailtrap validates credentials up front: a missing token or sender is a
// deployment error, caught at startup rather than on the first send.
func NewMailtrap(cfg MailtrapConfig, log logx.Logger) (*Mailtrap, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("mailtrap: base url required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("mailtrap: api token required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("mailtrap: from address required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Mailtrap{
		base:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token: cfg.Token,
		from:  apiAddress{Email: cfg.FromEmail, Name: cfg.FromName},
		hc:    &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

func (c *Mailtrap) Name() string { return "mailtrap" }

func (c *Mailtrap) Send(ctx context.Context, msg EmailMessage) error {
	req := apiSendRequest{
		From: c.from,
		To:   []apiAddress{{Email: msg.To.Address, Name: msg.To.Name}},
	}
	if msg.TemplateID != "" {
		req.TemplateUUID = msg.TemplateID
		req.TemplateVariables = msg.Variables
	} else {
		req.Subject = msg.Subject
		req.Text = msg.Body
	}

	body, err := json.Marshal(req)
	if err != nil {
		return apperr.ProviderWrap(err, "mailtrap: encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/send", bytes.NewReader(body))
	if err != nil {
		return apperr.ProviderWrap(err, "mailtrap: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return apperr.ProviderWrap(err, "mailtrap: send")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if isUnauthorizedResponse(resp.StatusCode, respBody) {
		return apperr.UnauthorizedRecipientf("mailtrap: recipient %s rejected (status %d)", msg.To.Address, resp.StatusCode)
	}
	return apperr.Providerf("mailtrap: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

// isUnauthorizedResponse detects recipient-level authorization rejections.
// Sandbox accounts also report unverified recipients as 422 with an
// "unauthorized" message, so the body is checked too.
func isUnauthorizedResponse(status int, body []byte) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("unauthorized"))
}
