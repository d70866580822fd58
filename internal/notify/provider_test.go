package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

func TestMailtrapSendText(t *testing.T) {
	var got apiSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/send", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewMailtrap(MailtrapConfig{
		BaseURL: srv.URL, Token: "tok", FromEmail: "noreply@test", FromName: "Inspectd",
	}, logx.Nop())
	require.NoError(t, err)

	err = c.Send(context.Background(), EmailMessage{
		To:           Recipient{Name: "Dana", Address: "dana@test"},
		EmailContent: EmailContent{Subject: "due soon", Body: "check the boiler"},
	})
	require.NoError(t, err)
	require.Equal(t, "noreply@test", got.From.Email)
	require.Equal(t, "dana@test", got.To[0].Email)
	require.Equal(t, "due soon", got.Subject)
	require.Equal(t, "check the boiler", got.Text)
	require.Empty(t, got.TemplateUUID)
}

func TestMailtrapSendTemplate(t *testing.T) {
	var got apiSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewMailtrap(MailtrapConfig{BaseURL: srv.URL, Token: "tok", FromEmail: "noreply@test"}, logx.Nop())
	require.NoError(t, err)

	err = c.Send(context.Background(), EmailMessage{
		To: Recipient{Address: "dana@test"},
		EmailContent: EmailContent{
			TemplateID: "tmpl-1",
			Variables:  map[string]string{"asset": "Boiler 3"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "tmpl-1", got.TemplateUUID)
	require.Equal(t, "Boiler 3", got.TemplateVariables["asset"])
	require.Empty(t, got.Subject)
}

func TestMailtrapErrorMapping(t *testing.T) {
	cases := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
	}{
		{"forbidden", http.StatusForbidden, `{"errors":["nope"]}`, true},
		{"unauthorized_status", http.StatusUnauthorized, ``, true},
		{"unauthorized_body", http.StatusUnprocessableEntity, `{"errors":["Unauthorized recipient"]}`, true},
		{"server_error", http.StatusInternalServerError, `boom`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewMailtrap(MailtrapConfig{BaseURL: srv.URL, Token: "tok", FromEmail: "n@test"}, logx.Nop())
			require.NoError(t, err)

			err = c.Send(context.Background(), EmailMessage{To: Recipient{Address: "x@test"}})
			require.Error(t, err)
			require.True(t, apperr.IsProvider(err))
			require.Equal(t, tc.unauthorized, apperr.IsUnauthorizedRecipient(err))
		})
	}
}

func TestMailtrapFailFastConstructor(t *testing.T) {
	_, err := NewMailtrap(MailtrapConfig{BaseURL: "http://x", FromEmail: "n@test"}, logx.Nop())
	require.Error(t, err, "missing token")
	_, err = NewMailtrap(MailtrapConfig{Token: "t", FromEmail: "n@test"}, logx.Nop())
	require.Error(t, err, "missing base url")
	_, err = NewMailtrap(MailtrapConfig{BaseURL: "http://x", Token: "t"}, logx.Nop())
	require.Error(t, err, "missing from")
}

func TestTwilioSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC1", user)
		require.Equal(t, "tok", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "+15550000", r.PostForm.Get("From"))
		require.Equal(t, "+15551111", r.PostForm.Get("To"))
		require.Equal(t, "inspection due", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewTwilio(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+15550000"}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), "+15551111", "inspection due"))
}

func TestTwilioErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid number"}`))
	}))
	defer srv.Close()

	c, err := NewTwilio(TwilioConfig{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+15550000"}, logx.Nop())
	require.NoError(t, err)
	err = c.Send(context.Background(), "bogus", "hi")
	require.True(t, apperr.IsProvider(err))
	require.Contains(t, err.Error(), "invalid number")
}

func TestTwilioFailFastConstructor(t *testing.T) {
	_, err := NewTwilio(TwilioConfig{AuthToken: "t", From: "+1"}, logx.Nop())
	require.Error(t, err)
	_, err = NewTwilio(TwilioConfig{AccountSID: "AC1", From: "+1"}, logx.Nop())
	require.Error(t, err)
	_, err = NewTwilio(TwilioConfig{AccountSID: "AC1", AuthToken: "t"}, logx.Nop())
	require.Error(t, err)
}

func TestSMTPRelaySend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	r, err := NewSMTPRelay(SMTPConfig{
		Addr: "relay.test:587", Username: "u", Password: "p",
		FromEmail: "noreply@test", FromName: "Inspectd",
	}, logx.Nop())
	require.NoError(t, err)
	r.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err = r.Send(context.Background(), EmailMessage{
		To:           Recipient{Name: "Dana", Address: "dana@test"},
		EmailContent: EmailContent{Subject: "Inspection due", Body: "Boiler 3 is due.\n\nPlease confirm."},
	})
	require.NoError(t, err)
	require.Equal(t, "relay.test:587", gotAddr)
	require.Equal(t, "noreply@test", gotFrom)
	require.Equal(t, []string{"dana@test"}, gotTo)

	msg := string(gotMsg)
	require.Contains(t, msg, "Subject: Inspection due")
	require.Contains(t, msg, "Content-Type: text/html")
	require.Contains(t, msg, "Boiler 3 is due.")
	require.Contains(t, msg, "Please confirm.")
}

func TestSMTPRelayTemplateFallbackBody(t *testing.T) {
	r, err := NewSMTPRelay(SMTPConfig{Addr: "relay.test:25", FromEmail: "noreply@test"}, logx.Nop())
	require.NoError(t, err)
	var gotMsg []byte
	r.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	err = r.Send(context.Background(), EmailMessage{
		To: Recipient{Address: "dana@test"},
		EmailContent: EmailContent{
			TemplateID: "tmpl-1",
			Variables:  map[string]string{"asset_name": "Boiler 3", "due_date": "2026-09-15"},
		},
	})
	require.NoError(t, err)
	msg := string(gotMsg)
	require.Contains(t, msg, "asset name: Boiler 3")
	require.Contains(t, msg, "due date: 2026-09-15")
}

func TestSMTPRelayFailFastConstructor(t *testing.T) {
	_, err := NewSMTPRelay(SMTPConfig{FromEmail: "n@test"}, logx.Nop())
	require.Error(t, err, "missing addr")
	_, err = NewSMTPRelay(SMTPConfig{Addr: "no-port", FromEmail: "n@test"}, logx.Nop())
	require.Error(t, err, "addr without port")
	_, err = NewSMTPRelay(SMTPConfig{Addr: "relay.test:25"}, logx.Nop())
	require.Error(t, err, "missing from")
}

func TestRenderEmailHTMLEscapes(t *testing.T) {
	html, err := renderEmailHTML("T", "<script>alert(1)</script>")
	require.NoError(t, err)
	require.NotContains(t, html, "<script>")
	require.True(t, strings.Contains(html, "&lt;script&gt;"))
}
