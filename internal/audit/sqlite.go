package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nwops/upgraded/pkg/models"
)

// Compile-time interface guard.
var _ Recorder = (*SQLiteRecorder)(nil)

// SQLiteRecorder implements Recorder over the upgrades and audit_events
// tables.
type SQLiteRecorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRecorder creates a Recorder. A nil clock uses time.Now.
func NewSQLiteRecorder(db *sql.DB, now func() time.Time) *SQLiteRecorder {
	if now == nil {
		now = time.Now
	}
	return &SQLiteRecorder{db: db, now: now}
}

func (r *SQLiteRecorder) CreateAttempt(ctx context.Context, record *models.UpgradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Kind == "" {
		record.Kind = models.AttemptUpgrade
	}
	if record.Status == "" {
		record.Status = models.StatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}

	verdictJSON, err := json.Marshal(record.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO upgrades (id, router_id, kind, verdict, status, target_ver, detail, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.DeviceID, string(record.Kind), string(verdictJSON),
		string(record.Status), record.TargetVersion, nullableJSON(record.Detail),
		record.CreatedAt, record.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}

	return r.AppendEvent(ctx, record.DeviceID, record.ID, "attempt_created", map[string]any{
		"kind":           record.Kind,
		"approve":        record.Verdict.Approve,
		"reason":         record.Verdict.Reason,
		"target_version": record.TargetVersion,
		"source":         record.Verdict.Source,
		"risk_score":     record.Verdict.RiskScore,
		"pre_checks":     record.Verdict.PreChecks,
	})
}

func (r *SQLiteRecorder) UpdateStatus(ctx context.Context, attemptID string, status models.UpgradeStatus, detail json.RawMessage) error {
	var completedAt *time.Time
	if status.Terminal() {
		t := r.now().UTC()
		completedAt = &t
	}

	var res sql.Result
	var err error
	if detail != nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE upgrades SET status = ?, detail = ?, completed_at = ? WHERE id = ?`,
			string(status), string(detail), completedAt, attemptID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE upgrades SET status = ?, completed_at = ? WHERE id = ?`,
			string(status), completedAt, attemptID)
	}
	if err != nil {
		return fmt.Errorf("update attempt %q status: %w", attemptID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	record, err := r.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	payload := map[string]any{"status": status}
	if detail != nil {
		payload["detail"] = json.RawMessage(detail)
	}
	return r.AppendEvent(ctx, record.DeviceID, attemptID, "status_"+string(status), payload)
}

func (r *SQLiteRecorder) AppendEvent(ctx context.Context, deviceID, attemptID, event string, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, router_id, attempt_id, event, payload, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), deviceID, attemptID, event, nullableJSON(payloadJSON), r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append event %q: %w", event, err)
	}
	return nil
}

const attemptColumns = `id, router_id, kind, verdict, status, target_ver, detail, created_at, completed_at`

func (r *SQLiteRecorder) OpenAttempt(ctx context.Context, deviceID string) (*models.UpgradeRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM upgrades
		WHERE router_id = ? AND status IN ('pending', 'precheck', 'running')
		ORDER BY created_at DESC LIMIT 1`, deviceID)
	return scanAttempt(row)
}

func (r *SQLiteRecorder) GetAttempt(ctx context.Context, id string) (*models.UpgradeRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM upgrades WHERE id = ?`, id)
	return scanAttempt(row)
}

func (r *SQLiteRecorder) ListAttempts(ctx context.Context, deviceID string, limit int) ([]models.UpgradeRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM upgrades
		WHERE router_id = ? ORDER BY created_at DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var records []models.UpgradeRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	if records == nil {
		records = []models.UpgradeRecord{}
	}
	return records, nil
}

func (r *SQLiteRecorder) ListEvents(ctx context.Context, deviceID string, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, router_id, attempt_id, event, payload, ts FROM audit_events
		WHERE router_id = ? ORDER BY ts DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.AttemptID, &e.Event, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*models.UpgradeRecord, error) {
	var (
		rec         models.UpgradeRecord
		kind        string
		verdictJSON string
		status      string
		detail      sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.DeviceID, &kind, &verdictJSON, &status,
		&rec.TargetVersion, &detail, &rec.CreatedAt, &rec.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}

	rec.Kind = models.AttemptKind(kind)
	rec.Status = models.UpgradeStatus(status)
	if detail.Valid {
		rec.Detail = json.RawMessage(detail.String)
	}
	if err := json.Unmarshal([]byte(verdictJSON), &rec.Verdict); err != nil {
		return nil, fmt.Errorf("unmarshal verdict for attempt %q: %w", rec.ID, err)
	}
	return &rec, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
