package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jobline/internal/domain"
)

const bfSelect = `SELECT b.id,b.owner_id,b.name,(SELECT count(*) FROM jobs j WHERE j.owner_id=b.owner_id AND j.business_function_id=b.id),b.created_at,b.updated_at FROM business_functions b`

func scanBusinessFunction(s rowScanner) (domain.BusinessFunction, error) {
	var b domain.BusinessFunction
	err := s.Scan(&b.ID, &b.OwnerID, &b.Name, &b.JobCount, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r Repo) InsertBusinessFunction(ctx context.Context, tx *sql.Tx, b domain.BusinessFunction) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO business_functions(id,owner_id,name,created_at,updated_at) VALUES (?,?,?,?,?)`,
		b.ID, b.OwnerID, b.Name, b.CreatedAt, b.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetBusinessFunction(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.BusinessFunction, error) {
	b, err := scanBusinessFunction(r.conn(tx).QueryRowContext(ctx, bfSelect+` WHERE b.id=? AND b.owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

func (r Repo) ListBusinessFunctions(ctx context.Context, tx *sql.Tx, ownerID string) ([]domain.BusinessFunction, error) {
	rows, err := r.conn(tx).QueryContext(ctx, bfSelect+` WHERE b.owner_id=? ORDER BY b.name, b.id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.BusinessFunction{}
	for rows.Next() {
		b, err := scanBusinessFunction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) RenameBusinessFunction(ctx context.Context, tx *sql.Tx, ownerID, id, name, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE business_functions SET name=?, updated_at=? WHERE id=? AND owner_id=?`, name, updatedAt, id, ownerID)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBusinessFunction removes the function; its jobs keep existing with
// business_function_id set to NULL.
func (r Repo) DeleteBusinessFunction(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	c := r.conn(tx)
	if _, err := c.ExecContext(ctx, `UPDATE jobs SET business_function_id=NULL WHERE owner_id=? AND business_function_id=?`, ownerID, id); err != nil {
		return false, Classify(err)
	}
	res, err := c.ExecContext(ctx, `DELETE FROM business_functions WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const piColumns = `id,owner_id,name,target_value,created_at,updated_at`

func scanPI(s rowScanner) (domain.PI, error) {
	var p domain.PI
	err := s.Scan(&p.ID, &p.OwnerID, &p.Name, &p.TargetValue, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r Repo) InsertPI(ctx context.Context, tx *sql.Tx, p domain.PI) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO pis(id,owner_id,name,target_value,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.OwnerID, p.Name, p.TargetValue, p.CreatedAt, p.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetPI(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.PI, error) {
	p, err := scanPI(r.conn(tx).QueryRowContext(ctx, `SELECT `+piColumns+` FROM pis WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPIs(ctx context.Context, tx *sql.Tx, ownerID string) ([]domain.PI, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+piColumns+` FROM pis WHERE owner_id=? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.PI{}
	for rows.Next() {
		p, err := scanPI(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePI(ctx context.Context, tx *sql.Tx, ownerID, id string, name *string, target *float64, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if target != nil {
		fields = append(fields, "target_value=?")
		args = append(args, *target)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, ownerID)
	res, err := r.conn(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE pis SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePI(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM pis WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const taskOwnerColumns = `id,owner_id,name,created_at,updated_at`

func scanTaskOwner(s rowScanner) (domain.TaskOwner, error) {
	var o domain.TaskOwner
	err := s.Scan(&o.ID, &o.OwnerID, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r Repo) InsertTaskOwner(ctx context.Context, tx *sql.Tx, o domain.TaskOwner) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO task_owners(id,owner_id,name,created_at,updated_at) VALUES (?,?,?,?,?)`,
		o.ID, o.OwnerID, o.Name, o.CreatedAt, o.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetTaskOwner(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.TaskOwner, error) {
	o, err := scanTaskOwner(r.conn(tx).QueryRowContext(ctx, `SELECT `+taskOwnerColumns+` FROM task_owners WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListTaskOwners(ctx context.Context, tx *sql.Tx, ownerID string) ([]domain.TaskOwner, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+taskOwnerColumns+` FROM task_owners WHERE owner_id=? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskOwner{}
	for rows.Next() {
		o, err := scanTaskOwner(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) RenameTaskOwner(ctx context.Context, tx *sql.Tx, ownerID, id, name, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE task_owners SET name=?, updated_at=? WHERE id=? AND owner_id=?`, name, updatedAt, id, ownerID)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTaskOwner removes the person and unassigns their tasks.
func (r Repo) DeleteTaskOwner(ctx context.Context, tx *sql.Tx, ownerID, id, updatedAt string) (bool, error) {
	c := r.conn(tx)
	if _, err := c.ExecContext(ctx, `UPDATE tasks SET assignee=NULL, updated_at=? WHERE owner_id=? AND assignee=?`, updatedAt, ownerID, id); err != nil {
		return false, Classify(err)
	}
	res, err := c.ExecContext(ctx, `DELETE FROM task_owners WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const qboColumns = `id,owner_id,name,target_value,created_at,updated_at`

func scanQBO(s rowScanner) (domain.QBO, error) {
	var q domain.QBO
	err := s.Scan(&q.ID, &q.OwnerID, &q.Name, &q.TargetValue, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r Repo) InsertQBO(ctx context.Context, tx *sql.Tx, q domain.QBO) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO qbos(id,owner_id,name,target_value,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		q.ID, q.OwnerID, q.Name, q.TargetValue, q.CreatedAt, q.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetQBO(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.QBO, error) {
	q, err := scanQBO(r.conn(tx).QueryRowContext(ctx, `SELECT `+qboColumns+` FROM qbos WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	return q, err
}

func (r Repo) ListQBOs(ctx context.Context, tx *sql.Tx, ownerID string) ([]domain.QBO, error) {
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+qboColumns+` FROM qbos WHERE owner_id=? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.QBO{}
	for rows.Next() {
		q, err := scanQBO(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) UpdateQBO(ctx context.Context, tx *sql.Tx, ownerID, id string, name *string, target *float64, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if target != nil {
		fields = append(fields, "target_value=?")
		args = append(args, *target)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, ownerID)
	res, err := r.conn(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE qbos SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteQBO removes the QBO; its PI mappings cascade.
func (r Repo) DeleteQBO(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM qbos WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
