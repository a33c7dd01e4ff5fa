package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

var monthNames = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// NextProjectNumberTx assigns the next project number for the month of now,
// format YYYY-MMM-NNNN with a per-month sequence starting at 1.
func (r Repo) NextProjectNumberTx(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%04d-%s-", now.Year(), monthNames[now.Month()-1])
	rows, err := tx.QueryContext(ctx, `SELECT project_no FROM projects WHERE project_no LIKE ?`, prefix+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()
	maxSeq := 0
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return "", err
		}
		var seq int
		if _, err := fmt.Sscanf(strings.TrimPrefix(no, prefix), "%d", &seq); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, maxSeq+1), nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	attachments, err := marshalStringSlice(p.AttachmentURLs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO projects(project_no,party_name,project_name,contact_person,mobile_number,email_id,agent_name,project_value,scope_of_development,current_stage,assigned_to,attachments_json,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ProjectNo, p.PartyName, p.ProjectName, nullable(p.ContactPerson), nullable(p.MobileNumber), nullable(p.EmailID), nullable(p.AgentName),
		p.ProjectValue.String(), p.ScopeOfDevelopment, string(p.CurrentStage), nullableStringPtr(p.AssignedTo), attachments, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

// UpdateProjectTx rewrites the project's scalar fields. Ledger rows are
// append-only and never touched here.
func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	attachments, err := marshalStringSlice(p.AttachmentURLs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE projects SET party_name=?, project_name=?, contact_person=?, mobile_number=?, email_id=?, agent_name=?, project_value=?, scope_of_development=?, current_stage=?, assigned_to=?, attachments_json=?, status=?, updated_at=? WHERE project_no=?`,
		p.PartyName, p.ProjectName, nullable(p.ContactPerson), nullable(p.MobileNumber), nullable(p.EmailID), nullable(p.AgentName),
		p.ProjectValue.String(), p.ScopeOfDevelopment, string(p.CurrentStage), nullableStringPtr(p.AssignedTo), attachments, p.Status, p.UpdatedAt, p.ProjectNo)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const projectColumns = `project_no,party_name,project_name,COALESCE(contact_person,''),COALESCE(mobile_number,''),COALESCE(email_id,''),COALESCE(agent_name,''),project_value,scope_of_development,current_stage,assigned_to,attachments_json,status,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var value string
	var stage string
	var assignedTo, attachments sql.NullString
	err := scan(&p.ProjectNo, &p.PartyName, &p.ProjectName, &p.ContactPerson, &p.MobileNumber, &p.EmailID, &p.AgentName,
		&value, &p.ScopeOfDevelopment, &stage, &assignedTo, &attachments, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.ProjectValue, err = decimal.NewFromString(value)
	if err != nil {
		return p, fmt.Errorf("project %s value: %w", p.ProjectNo, err)
	}
	p.CurrentStage = domain.Stage(stage)
	if assignedTo.Valid {
		p.AssignedTo = &assignedTo.String
	}
	if attachments.Valid {
		p.AttachmentURLs = decodeStringSlice(attachments.String)
	}
	return p, nil
}

// GetProject returns the project's scalar fields only.
func (r Repo) GetProject(ctx context.Context, projectNo string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_no=?`, projectNo)
	return scanProjectRow(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, projectNo string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_no=?`, projectNo)
	return scanProjectRow(row.Scan)
}

// GetAggregate loads the project with all five ledgers populated.
func (r Repo) GetAggregate(ctx context.Context, projectNo string) (domain.Project, error) {
	p, err := r.GetProject(ctx, projectNo)
	if err != nil {
		return p, err
	}
	scope, err := r.ListScopeVersions(ctx, projectNo)
	if err != nil {
		return p, err
	}
	stages, err := r.ListStageHistory(ctx, projectNo)
	if err != nil {
		return p, err
	}
	advances, err := r.ListAdvances(ctx, projectNo)
	if err != nil {
		return p, err
	}
	serials, err := r.ListSerials(ctx, projectNo)
	if err != nil {
		return p, err
	}
	statuses, err := r.ListStatusUpdates(ctx, projectNo)
	if err != nil {
		return p, err
	}
	p.ScopeHistory = domain.LedgerOf(scope)
	p.StageHistory = domain.LedgerOf(stages)
	p.Advances = domain.LedgerOf(advances)
	p.Serials = domain.LedgerOf(serials)
	p.StatusUpdates = domain.LedgerOf(statuses)
	return p, nil
}

type ProjectFilters struct {
	Stage           string
	IncludeDeleted  bool
	Limit           int
	CursorCreatedAt string
	CursorNo        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if !f.IncludeDeleted {
		clauses = append(clauses, "status != ?")
		args = append(args, domain.ProjectStatusDeleted)
	}
	if f.Stage != "" {
		clauses = append(clauses, "current_stage=?")
		args = append(args, f.Stage)
	}
	if f.CursorCreatedAt != "" && f.CursorNo != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND project_no < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorNo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, project_no DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SerialCounts maps project numbers to recorded serial counts, used for the
// "Confirmed without serials" listing flag.
func (r Repo) SerialCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_no, count(*) FROM serial_numbers GROUP BY project_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var no string
		var count int
		if err := rows.Scan(&no, &count); err != nil {
			return nil, err
		}
		res[no] = count
	}
	return res, rows.Err()
}

func (r Repo) CountProjectsByStage(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT current_stage, count(*) FROM projects WHERE status != ? GROUP BY current_stage`, domain.ProjectStatusDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		res[stage] = count
	}
	return res, rows.Err()
}

// SoftDeleteProjectTx marks a project deleted. The row and its ledgers stay.
func (r Repo) SoftDeleteProjectTx(ctx context.Context, tx *sql.Tx, projectNo, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE project_no=? AND status != ?`,
		domain.ProjectStatusDeleted, updatedAt, projectNo, domain.ProjectStatusDeleted)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scope versions ---

func (r Repo) AppendScopeVersionTx(ctx context.Context, tx *sql.Tx, projectNo string, v domain.ScopeVersion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO scope_versions(project_no,version,scope,modified_by,modified_date) VALUES (?,?,?,?,?)`,
		projectNo, v.Version, v.Scope, v.ModifiedBy, v.ModifiedDate)
	return err
}

func (r Repo) ListScopeVersions(ctx context.Context, projectNo string) ([]domain.ScopeVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT version,scope,modified_by,modified_date FROM scope_versions WHERE project_no=? ORDER BY version ASC`, projectNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScopeVersion
	for rows.Next() {
		var v domain.ScopeVersion
		if err := rows.Scan(&v.Version, &v.Scope, &v.ModifiedBy, &v.ModifiedDate); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// --- stage history ---

func (r Repo) AppendStageEntryTx(ctx context.Context, tx *sql.Tx, projectNo string, e domain.StageEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_history(project_no,stage,changed_by,changed_date,remarks) VALUES (?,?,?,?,?)`,
		projectNo, string(e.Stage), e.ChangedBy, e.ChangedDate, nullable(e.Remarks))
	return err
}

func (r Repo) ListStageHistory(ctx context.Context, projectNo string) ([]domain.StageEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage,changed_by,changed_date,COALESCE(remarks,'') FROM stage_history WHERE project_no=? ORDER BY id ASC`, projectNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageEntry
	for rows.Next() {
		var e domain.StageEntry
		var stage string
		if err := rows.Scan(&stage, &e.ChangedBy, &e.ChangedDate, &e.Remarks); err != nil {
			return nil, err
		}
		e.Stage = domain.Stage(stage)
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- advance payments ---

func (r Repo) AppendAdvanceTx(ctx context.Context, tx *sql.Tx, projectNo string, a domain.AdvancePayment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO advance_payments(project_no,amount,pay_date,tally_entry_number,received_by,received_date) VALUES (?,?,?,?,?,?)`,
		projectNo, a.Amount.String(), a.Date, a.TallyEntryNumber, a.ReceivedBy, a.ReceivedDate)
	return err
}

func (r Repo) ListAdvances(ctx context.Context, projectNo string) ([]domain.AdvancePayment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT amount,pay_date,tally_entry_number,received_by,received_date FROM advance_payments WHERE project_no=? ORDER BY id ASC`, projectNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AdvancePayment
	for rows.Next() {
		var a domain.AdvancePayment
		var amount string
		if err := rows.Scan(&amount, &a.Date, &a.TallyEntryNumber, &a.ReceivedBy, &a.ReceivedDate); err != nil {
			return nil, err
		}
		a.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("advance amount for %s: %w", projectNo, err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- serial numbers ---

func (r Repo) AppendSerialTx(ctx context.Context, tx *sql.Tx, projectNo string, s domain.SerialNumber) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO serial_numbers(project_no,serial_number,version,recorded_by,recorded_date) VALUES (?,?,?,?,?)`,
		projectNo, s.SerialNumber, nullable(s.Version), s.RecordedBy, s.RecordedDate)
	return err
}

func (r Repo) ListSerials(ctx context.Context, projectNo string) ([]domain.SerialNumber, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT serial_number,COALESCE(version,''),recorded_by,recorded_date FROM serial_numbers WHERE project_no=? ORDER BY id ASC`, projectNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SerialNumber
	for rows.Next() {
		var s domain.SerialNumber
		if err := rows.Scan(&s.SerialNumber, &s.Version, &s.RecordedBy, &s.RecordedDate); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- status updates ---

func (r Repo) AppendStatusUpdateTx(ctx context.Context, tx *sql.Tx, projectNo string, u domain.StatusUpdate) error {
	attachments, err := marshalStringSlice(u.AttachmentURLs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO status_updates(project_no,status_code,notes,attachments_json,compiled_file_url,created_by,created_date) VALUES (?,?,?,?,?,?,?)`,
		projectNo, u.StatusCode, u.Notes, attachments, nullable(u.CompiledFileURL), u.CreatedBy, u.CreatedDate)
	return err
}

func (r Repo) ListStatusUpdates(ctx context.Context, projectNo string) ([]domain.StatusUpdate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status_code,notes,attachments_json,COALESCE(compiled_file_url,''),created_by,created_date FROM status_updates WHERE project_no=? ORDER BY id ASC`, projectNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusUpdate
	for rows.Next() {
		var u domain.StatusUpdate
		var attachments sql.NullString
		if err := rows.Scan(&u.StatusCode, &u.Notes, &attachments, &u.CompiledFileURL, &u.CreatedBy, &u.CreatedDate); err != nil {
			return nil, err
		}
		if attachments.Valid {
			u.AttachmentURLs = decodeStringSlice(attachments.String)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectNo, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectNo, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectNo, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectNo != "" {
		clauses = append(clauses, "project_no=?")
		args = append(args, projectNo)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_no,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectNo string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectNo != "" {
		clauses = append(clauses, "project_no=?")
		args = append(args, projectNo)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_no,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectNo, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally scoped to a project.
func (r Repo) LatestEventID(ctx context.Context, projectNo string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectNo != "" {
		query += ` WHERE project_no=?`
		args = append(args, projectNo)
	}
	row := r.DB.QueryRowContext(ctx, query, args...)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func marshalStringSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeStringSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
