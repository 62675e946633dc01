package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"jobline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers lost compare-and-swap races and lock contention.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate means the owner already has a row with that key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrConstraint covers foreign key and check violations.
	ErrConstraint = errors.New("constraint violation")
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// conn returns tx when set so every method can run inside or outside a unit of work.
func (r Repo) conn(tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return r.DB
}

// Classify maps driver errors onto ErrConflict, ErrDuplicate or
// ErrConstraint. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	code := se.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(vals []string) []any {
	args := make([]any, 0, len(vals))
	for _, v := range vals {
		args = append(args, v)
	}
	return args
}

const jobColumns = `id,owner_id,title,COALESCE(notes,''),business_function_id,due_date,is_done,next_task_id,created_at,updated_at`

func scanJob(s rowScanner) (domain.Job, error) {
	var j domain.Job
	var bf, due, next sql.NullString
	var done int
	if err := s.Scan(&j.ID, &j.OwnerID, &j.Title, &j.Notes, &bf, &due, &done, &next, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return j, err
	}
	if bf.Valid {
		j.BusinessFunctionID = &bf.String
	}
	if due.Valid {
		j.DueDate = &due.String
	}
	if next.Valid {
		j.NextTaskID = &next.String
	}
	j.IsDone = done != 0
	j.TaskIDs = []string{}
	return j, nil
}

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO jobs(id,owner_id,title,notes,business_function_id,due_date,is_done,next_task_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,NULL,?,?)`,
		j.ID, j.OwnerID, j.Title, nullable(j.Notes), nullableStringPtr(j.BusinessFunctionID), nullableStringPtr(j.DueDate), boolInt(j.IsDone), j.CreatedAt, j.UpdatedAt)
	return Classify(err)
}

// GetJob returns the job with its ordered task ids.
func (r Repo) GetJob(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.Job, error) {
	j, err := scanJob(r.conn(tx).QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	ids, err := r.ListTaskIDs(ctx, tx, ownerID, id)
	if err != nil {
		return j, err
	}
	j.TaskIDs = ids
	return j, nil
}

type JobFilters struct {
	OwnerID            string
	Done               *bool
	BusinessFunctionID string
	Limit              int
	CursorCreatedAt    string
	CursorID           string
}

func (r Repo) ListJobs(ctx context.Context, tx *sql.Tx, f JobFilters) ([]domain.Job, error) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.Done != nil {
		clauses = append(clauses, "is_done=?")
		args = append(args, boolInt(*f.Done))
	}
	if f.BusinessFunctionID != "" {
		clauses = append(clauses, "business_function_id=?")
		args = append(args, f.BusinessFunctionID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.conn(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}
	members, err := r.taskIDsByJob(ctx, tx, f.OwnerID)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if ids, ok := members[res[i].ID]; ok {
			res[i].TaskIDs = ids
		}
	}
	return res, nil
}

// JobUpdate carries the columns to change. A nil field is left untouched; an
// empty string clears a nullable column.
type JobUpdate struct {
	Title              *string
	Notes              *string
	BusinessFunctionID *string
	DueDate            *string
	IsDone             *bool
	UpdatedAt          string
}

func (r Repo) UpdateJob(ctx context.Context, tx *sql.Tx, ownerID, id string, u JobUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*u.Notes))
	}
	if u.BusinessFunctionID != nil {
		fields = append(fields, "business_function_id=?")
		args = append(args, nullableStringPtr(u.BusinessFunctionID))
	}
	if u.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullableStringPtr(u.DueDate))
	}
	if u.IsDone != nil {
		fields = append(fields, "is_done=?")
		args = append(args, boolInt(*u.IsDone))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id, ownerID)
	res, err := r.conn(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE jobs SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJob removes the job; tasks and mappings go with it through the
// cascading foreign keys.
func (r Repo) DeleteJob(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	c := r.conn(tx)
	if _, err := c.ExecContext(ctx, `UPDATE jobs SET next_task_id=NULL WHERE id=? AND owner_id=?`, id, ownerID); err != nil {
		return false, Classify(err)
	}
	res, err := c.ExecContext(ctx, `DELETE FROM jobs WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SwapNextTask moves the job's pointer from expected to next in one
// conditional update. ErrConflict means the pointer no longer holds expected
// or the job is gone.
func (r Repo) SwapNextTask(ctx context.Context, tx *sql.Tx, ownerID, jobID string, expected, next *string, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE jobs SET next_task_id=?, updated_at=? WHERE id=? AND owner_id=? AND next_task_id IS ?`,
		nullableStringPtr(next), updatedAt, jobID, ownerID, nullableStringPtr(expected))
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ClearNextTaskFor drops any pointer naming taskID and returns the job it was
// cleared on, or "" when no job pointed at it.
func (r Repo) ClearNextTaskFor(ctx context.Context, tx *sql.Tx, ownerID, taskID, updatedAt string) (string, error) {
	var jobID string
	err := r.conn(tx).QueryRowContext(ctx, `UPDATE jobs SET next_task_id=NULL, updated_at=? WHERE owner_id=? AND next_task_id=? RETURNING id`,
		updatedAt, ownerID, taskID).Scan(&jobID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", Classify(err)
	}
	return jobID, nil
}

// SetJobsDone sets is_done on the listed jobs and returns how many rows
// actually changed. Unknown ids are skipped.
func (r Repo) SetJobsDone(ctx context.Context, tx *sql.Tx, ownerID string, ids []string, done bool, updatedAt string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{boolInt(done), updatedAt, ownerID, boolInt(done)}
	args = append(args, stringArgs(ids)...)
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE jobs SET is_done=?, updated_at=? WHERE owner_id=? AND is_done != ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, Classify(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r Repo) CountJobsByBusinessFunction(ctx context.Context, tx *sql.Tx, ownerID string) (map[string]int, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT business_function_id, count(*) FROM jobs WHERE owner_id=? AND business_function_id IS NOT NULL GROUP BY business_function_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var bf string
		var count int
		if err := rows.Scan(&bf, &count); err != nil {
			return nil, err
		}
		res[bf] = count
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
