package repo

import (
	"context"
	"database/sql"
	"strings"

	"jobline/internal/domain"
)

const mappingColumns = `id,owner_id,job_id,pi_id,job_name,pi_name,pi_target,pi_impact_value,COALESCE(notes,''),created_at,updated_at`

func scanMapping(s rowScanner) (domain.Mapping, error) {
	var m domain.Mapping
	err := s.Scan(&m.ID, &m.OwnerID, &m.JobID, &m.PIID, &m.JobName, &m.PIName, &m.PITarget, &m.PIImpactValue, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r Repo) InsertMapping(ctx context.Context, tx *sql.Tx, m domain.Mapping) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO pi_job_mappings(id,owner_id,job_id,pi_id,job_name,pi_name,pi_target,pi_impact_value,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.OwnerID, m.JobID, m.PIID, m.JobName, m.PIName, m.PITarget, m.PIImpactValue, nullable(m.Notes), m.CreatedAt, m.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetMapping(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.Mapping, error) {
	m, err := scanMapping(r.conn(tx).QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM pi_job_mappings WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

type MappingFilters struct {
	OwnerID string
	JobID   string
	PIID    string
}

func (r Repo) ListMappings(ctx context.Context, tx *sql.Tx, f MappingFilters) ([]domain.Mapping, error) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.PIID != "" {
		clauses = append(clauses, "pi_id=?")
		args = append(args, f.PIID)
	}
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+mappingColumns+` FROM pi_job_mappings WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpdateMapping rewrites the editable columns. Job and PI references and the
// name snapshots never change after insert.
func (r Repo) UpdateMapping(ctx context.Context, tx *sql.Tx, m domain.Mapping) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE pi_job_mappings SET pi_target=?, pi_impact_value=?, notes=?, updated_at=? WHERE id=? AND owner_id=?`,
		m.PITarget, m.PIImpactValue, nullable(m.Notes), m.UpdatedAt, m.ID, m.OwnerID)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetMappingImpact(ctx context.Context, tx *sql.Tx, ownerID, id string, value float64, updatedAt string) error {
	_, err := r.conn(tx).ExecContext(ctx, `UPDATE pi_job_mappings SET pi_impact_value=?, updated_at=? WHERE id=? AND owner_id=?`, value, updatedAt, id, ownerID)
	return Classify(err)
}

func (r Repo) DeleteMapping(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM pi_job_mappings WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const qboMappingColumns = `id,owner_id,pi_id,qbo_id,pi_name,qbo_name,qbo_impact,COALESCE(notes,''),created_at,updated_at`

func scanQBOMapping(s rowScanner) (domain.QBOMapping, error) {
	var m domain.QBOMapping
	err := s.Scan(&m.ID, &m.OwnerID, &m.PIID, &m.QBOID, &m.PIName, &m.QBOName, &m.QBOImpact, &m.Notes, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r Repo) InsertQBOMapping(ctx context.Context, tx *sql.Tx, m domain.QBOMapping) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO pi_qbo_mappings(id,owner_id,pi_id,qbo_id,pi_name,qbo_name,qbo_impact,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.OwnerID, m.PIID, m.QBOID, m.PIName, m.QBOName, m.QBOImpact, nullable(m.Notes), m.CreatedAt, m.UpdatedAt)
	return Classify(err)
}

func (r Repo) GetQBOMapping(ctx context.Context, tx *sql.Tx, ownerID, id string) (domain.QBOMapping, error) {
	m, err := scanQBOMapping(r.conn(tx).QueryRowContext(ctx, `SELECT `+qboMappingColumns+` FROM pi_qbo_mappings WHERE id=? AND owner_id=?`, id, ownerID))
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

type QBOMappingFilters struct {
	OwnerID string
	PIID    string
	QBOID   string
}

func (r Repo) ListQBOMappings(ctx context.Context, tx *sql.Tx, f QBOMappingFilters) ([]domain.QBOMapping, error) {
	clauses := []string{"owner_id=?"}
	args := []any{f.OwnerID}
	if f.PIID != "" {
		clauses = append(clauses, "pi_id=?")
		args = append(args, f.PIID)
	}
	if f.QBOID != "" {
		clauses = append(clauses, "qbo_id=?")
		args = append(args, f.QBOID)
	}
	rows, err := r.conn(tx).QueryContext(ctx, `SELECT `+qboMappingColumns+` FROM pi_qbo_mappings WHERE `+strings.Join(clauses, " AND ")+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.QBOMapping{}
	for rows.Next() {
		m, err := scanQBOMapping(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateQBOMapping(ctx context.Context, tx *sql.Tx, m domain.QBOMapping) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE pi_qbo_mappings SET qbo_impact=?, notes=?, updated_at=? WHERE id=? AND owner_id=?`,
		m.QBOImpact, nullable(m.Notes), m.UpdatedAt, m.ID, m.OwnerID)
	if err != nil {
		return Classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteQBOMapping(ctx context.Context, tx *sql.Tx, ownerID, id string) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `DELETE FROM pi_qbo_mappings WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return false, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
