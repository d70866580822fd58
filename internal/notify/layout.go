package notify

import (
	"html/template"
	"strings"
)

// emailLayout wraps a plain-text message into the standard HTML shell used
// by the SMTP relay. The primary provider renders its own templates
// server-side.
var emailLayout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
  <body style="margin:0;padding:0;background-color:#f4f4f5;font-family:Arial,Helvetica,sans-serif;">
    <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
      <tr><td align="center" style="padding:24px 12px;">
        <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;overflow:hidden;">
          <tr><td style="background:#1f2937;padding:20px 32px;">
            <span style="color:#ffffff;font-size:18px;font-weight:bold;">{{.Title}}</span>
          </td></tr>
          <tr><td style="padding:28px 32px;color:#374151;font-size:14px;line-height:1.6;">
            {{range .Paragraphs}}<p style="margin:0 0 14px;">{{.}}</p>{{end}}
          </td></tr>
          <tr><td style="padding:16px 32px;background:#f9fafb;color:#9ca3af;font-size:12px;">
            This is an automated reminder. Please do not reply to this message.
          </td></tr>
        </table>
      </td></tr>
    </table>
  </body>
</html>`))

type layoutData struct {
	Title      string
	Paragraphs []string
}

// renderEmailHTML renders body text (blank-line separated paragraphs) into
// the HTML layout.
func renderEmailHTML(title, body string) (string, error) {
	var paras []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	var b strings.Builder
	if err := emailLayout.Execute(&b, layoutData{Title: title, Paragraphs: paras}); err != nil {
		return "", err
	}
	return b.String(), nil
}
