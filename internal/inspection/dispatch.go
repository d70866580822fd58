package inspection

import (
	"context"
	"strings"
	"time"

	"inspectd/internal/apperr"
	"inspectd/internal/notify"
	"inspectd/internal/store"
	logx "inspectd/pkg/logx"
)

// deliver runs when a reminder job fires. It re-reads the latest reminder
// for the slot at fire time, so a rebind between scheduling and firing wins
// without touching the timer, then fans out over the configured channels.
func (s *Service) deliver(ctx context.Context, clientID, assetID string, date time.Time) error {
	rem, ok, err := s.st.LatestReminder(ctx, clientID, assetID, date)
	if err != nil {
		return apperr.Schedulingf("reminder lookup for %s/%s on %s: %v", clientID, assetID, date.Format("2006-01-02"), err)
	}
	if !ok {
		s.log.Warn("reminder fired but no config found; skipping",
			logx.String("client", clientID),
			logx.String("asset", assetID),
			logx.String("date", date.Format("2006-01-02")),
		)
		return nil
	}

	detail, err := s.st.InspectionDetail(ctx, rem.InspectionID)
	if err != nil {
		return apperr.Schedulingf("inspection detail %s: %v", rem.InspectionID, err)
	}

	facts := notify.Facts{
		AssetName: detail.AssetName,
		ClientID:  clientID,
		DueDate:   detail.Inspection.DueDate,
		Location:  detail.Inspection.Location,
	}

	var sent, failed int
	if rem.Method.WantsEmail() && s.email != nil {
		content, ok, err := s.emailContent(ctx, rem, detail, facts)
		if err != nil {
			return err
		}
		if ok {
			results := s.email.Dispatch(ctx, content, emailRecipients(detail))
			a, b := notify.Summarize(results)
			sent, failed = sent+a, failed+b
		}
	}
	if rem.Method.WantsSMS() && s.sms != nil {
		body, err := s.smsBody(ctx, rem, facts)
		if err != nil {
			return err
		}
		results := s.sms.Dispatch(ctx, body, smsRecipients(detail))
		a, b := notify.Summarize(results)
		sent, failed = sent+a, failed+b
	}

	s.log.Info("reminder delivered",
		logx.String("inspection", rem.InspectionID),
		logx.String("client", clientID),
		logx.String("asset", assetID),
		logx.String("date", date.Format("2006-01-02")),
		logx.Int("sent", sent),
		logx.Int("failed", failed),
	)
	return nil
}

// emailContent resolves what to send over email. The bool is false when the
// reminder is misconfigured in a way that must suppress the send rather
// than fail the job.
func (s *Service) emailContent(ctx context.Context, rem store.Reminder, detail store.InspectionDetail, facts notify.Facts) (notify.EmailContent, bool, error) {
	subject := "Inspection reminder: " + detail.AssetName
	if rem.Source == store.SourceTemplate {
		tpl, err := s.st.EmailTemplateByID(ctx, rem.EmailTemplateID)
		if err != nil {
			return notify.EmailContent{}, false, err
		}
		if tpl.ProviderID == "" {
			// without a provider-side template id the API would send an
			// empty text email to everyone
			s.log.Warn("email template has no provider template id; skipping send",
				logx.String("inspection", rem.InspectionID),
				logx.String("template", rem.EmailTemplateID),
			)
			return notify.EmailContent{}, false, nil
		}
		if tpl.Subject != "" {
			subject = tpl.Subject
		}
		return notify.EmailContent{
			Subject:    subject,
			TemplateID: tpl.ProviderID,
			Variables: map[string]string{
				"asset_name":      facts.AssetName,
				"client_name":     detail.Client.Name,
				"due_date":        facts.DueDate.Format("January 2, 2006"),
				"location":        facts.Location,
				"inspector_names": inspectorNames(detail),
			},
		}, true, nil
	}
	return notify.EmailContent{Subject: subject, Body: rem.ManualMessage}, true, nil
}

func (s *Service) smsBody(ctx context.Context, rem store.Reminder, facts notify.Facts) (string, error) {
	if rem.Source == store.SourceTemplate {
		// template bodies are authored at full length; only manual
		// messages get the facts appended
		tpl, err := s.st.SMSTemplateByID(ctx, rem.SMSTemplateID)
		if err != nil {
			return "", err
		}
		return tpl.Body, nil
	}
	return notify.ComposeSMS(rem.ManualMessage, facts), nil
}

func inspectorNames(d store.InspectionDetail) string {
	names := make([]string, 0, len(d.Inspectors))
	for _, c := range d.Inspectors {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

// emailRecipients is the deduplicated union of the client contact and the
// assigned inspectors.
func emailRecipients(d store.InspectionDetail) []notify.Recipient {
	out := []notify.Recipient{{Name: d.Client.Name, Address: d.Client.Email}}
	for _, c := range d.Inspectors {
		out = append(out, notify.Recipient{Name: c.Name, Address: c.Email})
	}
	return notify.DedupRecipients(out)
}

func smsRecipients(d store.InspectionDetail) []notify.Recipient {
	out := []notify.Recipient{{Name: d.Client.Name, Address: d.Client.Phone}}
	for _, c := range d.Inspectors {
		out = append(out, notify.Recipient{Name: c.Name, Address: c.Phone})
	}
	return notify.DedupRecipients(out)
}
