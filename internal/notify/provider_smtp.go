package notify

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

// SMTPConfig configures the fallback relay.
type SMTPConfig struct {
	Addr      string // host:port
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPRelay delivers email over plain SMTP. It is the fallback path for
// recipients the primary API provider refuses, so it renders the message
// into the standard HTML layout itself.
type SMTPRelay struct {
	addr string
	host string
	auth smtp.Auth
	from string
	name string
	log  logx.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPRelay(cfg SMTPConfig, log logx.Logger) (*SMTPRelay, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("smtp: relay address required")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrap(err, "smtp: relay address must be host:port")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, errors.New("smtp: from address required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTPRelay{
		addr: addr,
		host: host,
		auth: auth,
		from: cfg.FromEmail,
		name: cfg.FromName,
		log:  log,
		send: smtp.SendMail,
	}, nil
}

func (r *SMTPRelay) Name() string { return "smtp" }

// Send renders the message into the HTML layout and relays it. Template
// sends fall back to the subject plus variables as body facts, since the
// relay has no access to provider-side templates.
func (r *SMTPRelay) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return apperr.ProviderWrap(err, "smtp: send")
	}
	subject := msg.Subject
	if subject == "" {
		subject = "Inspection reminder"
	}
	body := msg.Body
	if body == "" {
		body = templateFallbackBody(msg.Variables)
	}
	html, err := renderEmailHTML(subject, body)
	if err != nil {
		return apperr.ProviderWrap(err, "smtp: render")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", formatAddress(r.name, r.from))
	fmt.Fprintf(&b, "To: %s\r\n", formatAddress(msg.To.Name, msg.To.Address))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)

	if err := r.send(r.addr, r.auth, r.from, []string{msg.To.Address}, []byte(b.String())); err != nil {
		return apperr.ProviderWrap(err, "smtp: send")
	}
	return nil
}

func formatAddress(name, email string) string {
	if strings.TrimSpace(name) == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), email)
}

// templateFallbackBody flattens template variables into readable lines.
func templateFallbackBody(vars map[string]string) string {
	if len(vars) == 0 {
		return "You have an upcoming inspection."
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("You have an upcoming inspection.\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n\n", strings.ReplaceAll(k, "_", " "), vars[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
