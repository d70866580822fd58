package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"inspectd/internal/apperr"
	logx "inspectd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const dateLayout = "2006-01-02"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the SQLite database at cfg.Path and applies the
// embedded schema.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertClient(ctx context.Context, c Contact) error {
	if err := requireID("client", c.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients(id, name, email, phone) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, phone=excluded.phone`,
		c.ID, c.Name, c.Email, c.Phone,
	)
	return err
}

func (s *sqliteStore) UpsertInspector(ctx context.Context, c Contact) error {
	if err := requireID("inspector", c.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inspectors(id, name, email, phone) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, phone=excluded.phone`,
		c.ID, c.Name, c.Email, c.Phone,
	)
	return err
}

func (s *sqliteStore) UpsertAsset(ctx context.Context, a Asset) error {
	if err := requireID("asset", a.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets(id, client_id, name) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET client_id=excluded.client_id, name=excluded.name`,
		a.ID, a.ClientID, a.Name,
	)
	return err
}

func (s *sqliteStore) UpsertEmailTemplate(ctx context.Context, t EmailTemplate) error {
	if err := requireID("email template", t.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_templates(id, provider_id, subject) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET provider_id=excluded.provider_id, subject=excluded.subject`,
		t.ID, t.ProviderID, t.Subject,
	)
	return err
}

func (s *sqliteStore) UpsertSMSTemplate(ctx context.Context, t SMSTemplate) error {
	if err := requireID("sms template", t.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sms_templates(id, body) VALUES(?,?)
		 ON CONFLICT(id) DO UPDATE SET body=excluded.body`,
		t.ID, t.Body,
	)
	return err
}

func (s *sqliteStore) CreateInspection(ctx context.Context, in Inspection) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = now
	}
	if in.Status == "" {
		in.Status = StatusScheduled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inspections(id, client_id, asset_id, type, status, due_date, location, notes, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.ClientID, in.AssetID, string(in.Type), string(in.Status),
		in.DueDate.Format(dateLayout), in.Location, in.Notes,
		in.CreatedAt.Format(time.RFC3339Nano), in.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return apperr.Conflictf("inspection already scheduled for client %s asset %s type %s due %s",
			in.ClientID, in.AssetID, in.Type, in.DueDate.Format(dateLayout))
	}
	return err
}

func (s *sqliteStore) AddInspectionAssignments(ctx context.Context, inspectionID string, inspectorIDs []string) error {
	if len(inspectorIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range inspectorIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO inspection_assignments(inspection_id, inspector_id) VALUES(?,?)`,
			inspectionID, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) UpdateInspectionStatus(ctx context.Context, id string, status InspectionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inspections SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("inspection %s", id)
	}
	return nil
}

const inspectionCols = `id, client_id, asset_id, type, status, due_date, location, notes, created_at, updated_at`

func scanInspection(row interface{ Scan(...any) error }) (Inspection, error) {
	var in Inspection
	var due, created, updated string
	err := row.Scan(&in.ID, &in.ClientID, &in.AssetID, (*string)(&in.Type), (*string)(&in.Status),
		&due, &in.Location, &in.Notes, &created, &updated)
	if err != nil {
		return Inspection{}, err
	}
	in.DueDate, _ = time.Parse(dateLayout, due)
	in.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	in.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return in, nil
}

func (s *sqliteStore) FindExisting(ctx context.Context, clientID, assetID string, typ InspectionType, due time.Time) (Inspection, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inspectionCols+` FROM inspections
		 WHERE client_id = ? AND asset_id = ? AND type = ? AND due_date = ? AND deleted_at IS NULL`,
		clientID, assetID, string(typ), due.Format(dateLayout),
	)
	in, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Inspection{}, false, nil
	}
	if err != nil {
		return Inspection{}, false, err
	}
	return in, true, nil
}

func (s *sqliteStore) FindOverdueRecurring(ctx context.Context, asOf time.Time) ([]Inspection, error) {
	// every non-deleted past-due recurring row is scanned regardless of
	// completion; only rows already rolled (marked overdue) are excluded,
	// the duplicate guard handles the rest
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inspectionCols+` FROM inspections
		 WHERE status != ? AND due_date < ? AND type != ? AND deleted_at IS NULL
		 ORDER BY due_date`,
		string(StatusOverdue), asOf.Format(dateLayout), string(TypeOneTime),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *sqliteStore) InspectionDetail(ctx context.Context, inspectionID string) (InspectionDetail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inspectionCols+` FROM inspections WHERE id = ? AND deleted_at IS NULL`,
		inspectionID,
	)
	in, err := scanInspection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return InspectionDetail{}, apperr.NotFoundf("inspection %s", inspectionID)
	}
	if err != nil {
		return InspectionDetail{}, err
	}

	d := InspectionDetail{Inspection: in}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone FROM clients WHERE id = ?`, in.ClientID,
	).Scan(&d.Client.ID, &d.Client.Name, &d.Client.Email, &d.Client.Phone)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return InspectionDetail{}, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT name FROM assets WHERE id = ?`, in.AssetID,
	).Scan(&d.AssetName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return InspectionDetail{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.name, i.email, i.phone
		 FROM inspectors i
		 JOIN inspection_assignments a ON a.inspector_id = i.id
		 WHERE a.inspection_id = ?
		 ORDER BY i.id`,
		inspectionID,
	)
	if err != nil {
		return InspectionDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return InspectionDetail{}, err
		}
		d.Inspectors = append(d.Inspectors, c)
	}
	return d, rows.Err()
}

func (s *sqliteStore) CreateReminder(ctx context.Context, r Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reminders(id, inspection_id, client_id, asset_id, reminder_date, type, method, source,
		                       email_template_id, sms_template_id, manual_message, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.InspectionID, r.ClientID, r.AssetID, r.ReminderDate.Format(dateLayout),
		string(r.Type), string(r.Method), string(r.Source),
		r.EmailTemplateID, r.SMSTemplateID, r.ManualMessage,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	for _, id := range r.InspectorIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO reminder_assignments(reminder_id, inspector_id) VALUES(?,?)`,
			r.ID, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const reminderCols = `id, inspection_id, client_id, asset_id, reminder_date, type, method, source,
	email_template_id, sms_template_id, manual_message, created_at`

func scanReminder(row interface{ Scan(...any) error }) (Reminder, error) {
	var r Reminder
	var date, created string
	err := row.Scan(&r.ID, &r.InspectionID, &r.ClientID, &r.AssetID, &date,
		(*string)(&r.Type), (*string)(&r.Method), (*string)(&r.Source),
		&r.EmailTemplateID, &r.SMSTemplateID, &r.ManualMessage, &created)
	if err != nil {
		return Reminder{}, err
	}
	r.ReminderDate, _ = time.Parse(dateLayout, date)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return r, nil
}

func (s *sqliteStore) reminderInspectors(ctx context.Context, reminderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT inspector_id FROM reminder_assignments WHERE reminder_id = ? ORDER BY inspector_id`,
		reminderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestReminder returns the most recently created reminder for the
// (client, asset, date) slot. Rebinding a slot supersedes older rows.
func (s *sqliteStore) LatestReminder(ctx context.Context, clientID, assetID string, reminderDate time.Time) (Reminder, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE client_id = ? AND asset_id = ? AND reminder_date = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		clientID, assetID, reminderDate.Format(dateLayout),
	)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, false, nil
	}
	if err != nil {
		return Reminder{}, false, err
	}
	r.InspectorIDs, err = s.reminderInspectors(ctx, r.ID)
	if err != nil {
		return Reminder{}, false, err
	}
	return r, true, nil
}

func (s *sqliteStore) FutureReminders(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE reminder_date >= ? ORDER BY reminder_date, created_at`,
		asOf.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].InspectorIDs, err = s.reminderInspectors(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *sqliteStore) EmailTemplateByID(ctx context.Context, id string) (EmailTemplate, error) {
	var t EmailTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, provider_id, subject FROM email_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.ProviderID, &t.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return EmailTemplate{}, apperr.NotFoundf("email template %s", id)
	}
	return t, err
}

func (s *sqliteStore) SMSTemplateByID(ctx context.Context, id string) (SMSTemplate, error) {
	var t SMSTemplate
	err := s.db.QueryRowContext(ctx,
		`SELECT id, body FROM sms_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return SMSTemplate{}, apperr.NotFoundf("sms template %s", id)
	}
	return t, err
}
