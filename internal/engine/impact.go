package engine

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"jobline/internal/config"
	"jobline/internal/domain"
	"jobline/internal/events"
	"jobline/internal/repo"
)

// JobProgress summarises a job's tasks for impact rules.
type JobProgress struct {
	TotalTasks     int
	CompletedTasks int
	CompletedHours float64
}

// ImpactInput is everything a rule may look at for one mapping.
type ImpactInput struct {
	Mapping  domain.Mapping
	Job      domain.Job
	Progress JobProgress
}

// ImpactRule computes a mapping's pi_impact_value.
type ImpactRule interface {
	Name() string
	Impact(in ImpactInput) float64
}

// PassthroughRule keeps the stored value.
type PassthroughRule struct{}

func (PassthroughRule) Name() string { return config.RulePassthrough }

func (PassthroughRule) Impact(in ImpactInput) float64 { return in.Mapping.PIImpactValue }

// CompletionShareRule credits the mapping's target in proportion to the
// job's completed tasks. A done job earns the full target; a job without
// tasks earns nothing.
type CompletionShareRule struct{}

func (CompletionShareRule) Name() string { return config.RuleCompletionShare }

func (CompletionShareRule) Impact(in ImpactInput) float64 {
	if in.Job.IsDone {
		return in.Mapping.PITarget
	}
	if in.Progress.TotalTasks == 0 {
		return 0
	}
	return in.Mapping.PITarget * float64(in.Progress.CompletedTasks) / float64(in.Progress.TotalTasks)
}

// CompletedHoursRule credits the required hours of completed tasks times Weight.
type CompletedHoursRule struct {
	Weight float64
}

func (CompletedHoursRule) Name() string { return config.RuleCompletedHours }

func (r CompletedHoursRule) Impact(in ImpactInput) float64 {
	return in.Progress.CompletedHours * r.Weight
}

// RuleFromConfig returns the rule named by impact.rule.
func RuleFromConfig(cfg *config.Config) ImpactRule {
	switch cfg.Impact.Rule {
	case config.RulePassthrough:
		return PassthroughRule{}
	case config.RuleCompletedHours:
		return CompletedHoursRule{Weight: cfg.Impact.HoursWeight}
	default:
		return CompletionShareRule{}
	}
}

// Aggregator owns job and QBO mappings and rolls job contributions up to
// PIs, business functions and QBOs.
type Aggregator struct {
	d    *Deps
	Rule ImpactRule
}

type MappingInput struct {
	ID            string
	JobID         string
	PIID          string
	PITarget      *float64
	PIImpactValue float64
	Notes         string
}

type MappingPatch struct {
	PITarget      *float64
	PIImpactValue *float64
	Notes         *string
}

type MappingFilter struct {
	JobID string
	PIID  string
}

// ImpactSummary reports one recalculation pass.
type ImpactSummary struct {
	Evaluated int    `json:"evaluated"`
	Updated   int    `json:"updated"`
	Rule      string `json:"rule"`
}

type ImpactTotals struct {
	PIs               []domain.PITotal               `json:"pis"`
	BusinessFunctions []domain.BusinessFunctionTotal `json:"business_functions"`
	QBOs              []domain.QBOTotal              `json:"qbos"`
}

func finite(field string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return invalid(field, "must be a finite number")
	}
	return nil
}

// JobCountsByBusinessFunction counts the owner's jobs per business function.
// Jobs without one are left out.
func (a *Aggregator) JobCountsByBusinessFunction(ctx context.Context, owner string) (map[string]int, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := a.d.Repo.CountJobsByBusinessFunction(ctx, nil, owner)
	return res, storeErr("job counts", err)
}

// CreateMapping links a job to a PI. Names and the target are captured now
// and never refreshed.
func (a *Aggregator) CreateMapping(ctx context.Context, owner string, in MappingInput) (domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Mapping{}, err
	}
	if in.JobID == "" {
		return domain.Mapping{}, invalid("job_id", "is required")
	}
	if in.PIID == "" {
		return domain.Mapping{}, invalid("pi_id", "is required")
	}
	if err := finite("pi_target", in.PITarget); err != nil {
		return domain.Mapping{}, err
	}
	if err := finite("pi_impact_value", &in.PIImpactValue); err != nil {
		return domain.Mapping{}, err
	}
	var out domain.Mapping
	err := a.d.withTx(ctx, "create mapping", func(tx *sql.Tx) error {
		job, err := a.d.Repo.GetJob(ctx, tx, owner, in.JobID)
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("job_id", "job %s does not exist", in.JobID)
		}
		if err != nil {
			return err
		}
		pi, err := a.d.Repo.GetPI(ctx, tx, owner, in.PIID)
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("pi_id", "pi %s does not exist", in.PIID)
		}
		if err != nil {
			return err
		}
		now := a.d.stamp()
		out = domain.Mapping{
			ID:            newID(in.ID),
			OwnerID:       owner,
			JobID:         job.ID,
			PIID:          pi.ID,
			JobName:       job.Title,
			PIName:        pi.Name,
			PITarget:      pi.TargetValue,
			PIImpactValue: in.PIImpactValue,
			Notes:         in.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if in.PITarget != nil {
			out.PITarget = *in.PITarget
		}
		if err := a.d.Repo.InsertMapping(ctx, tx, out); err != nil {
			return err
		}
		return a.d.Events.Append(ctx, tx, events.MappingCreated, owner, "mapping", out.ID, events.EventPayload{"job_id": job.ID, "pi_id": pi.ID})
	})
	if err != nil {
		return domain.Mapping{}, err
	}
	return out, nil
}

func (a *Aggregator) UpdateMapping(ctx context.Context, owner, id string, p MappingPatch) (domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Mapping{}, err
	}
	if err := finite("pi_target", p.PITarget); err != nil {
		return domain.Mapping{}, err
	}
	if err := finite("pi_impact_value", p.PIImpactValue); err != nil {
		return domain.Mapping{}, err
	}
	var out domain.Mapping
	err := a.d.withTx(ctx, "update mapping", func(tx *sql.Tx) error {
		cur, err := a.d.Repo.GetMapping(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("mapping", id)
		}
		if err != nil {
			return err
		}
		if p.PITarget != nil {
			cur.PITarget = *p.PITarget
		}
		if p.PIImpactValue != nil {
			cur.PIImpactValue = *p.PIImpactValue
		}
		if p.Notes != nil {
			cur.Notes = *p.Notes
		}
		cur.UpdatedAt = a.d.stamp()
		if err := a.d.Repo.UpdateMapping(ctx, tx, cur); err != nil {
			return err
		}
		out = cur
		return a.d.Events.Append(ctx, tx, events.MappingUpdated, owner, "mapping", id, nil)
	})
	if err != nil {
		return domain.Mapping{}, err
	}
	return out, nil
}

func (a *Aggregator) DeleteMapping(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := a.d.withTx(ctx, "delete mapping", func(tx *sql.Tx) error {
		var err error
		if deleted, err = a.d.Repo.DeleteMapping(ctx, tx, owner, id); err != nil || !deleted {
			return err
		}
		return a.d.Events.Append(ctx, tx, events.MappingDeleted, owner, "mapping", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (a *Aggregator) GetMapping(ctx context.Context, owner, id string) (domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.Mapping{}, err
	}
	m, err := a.d.Repo.GetMapping(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return m, notFound("mapping", id)
	}
	return m, storeErr("get mapping", err)
}

func (a *Aggregator) ListMappings(ctx context.Context, owner string, f MappingFilter) ([]domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := a.d.Repo.ListMappings(ctx, nil, repo.MappingFilters{OwnerID: owner, JobID: f.JobID, PIID: f.PIID})
	return res, storeErr("list mappings", err)
}

// MappingsForJob lists the job's mappings; the job must exist.
func (a *Aggregator) MappingsForJob(ctx context.Context, owner, jobID string) ([]domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if _, err := a.d.Repo.GetJob(ctx, nil, owner, jobID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("job", jobID)
		}
		return nil, storeErr("mappings for job", err)
	}
	return a.ListMappings(ctx, owner, MappingFilter{JobID: jobID})
}

// MappingsForPI lists the PI's mappings; the PI must exist.
func (a *Aggregator) MappingsForPI(ctx context.Context, owner, piID string) ([]domain.Mapping, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if _, err := a.d.Repo.GetPI(ctx, nil, owner, piID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("pi", piID)
		}
		return nil, storeErr("mappings for pi", err)
	}
	return a.ListMappings(ctx, owner, MappingFilter{PIID: piID})
}

func (a *Aggregator) rule() ImpactRule {
	if a.Rule == nil {
		return CompletionShareRule{}
	}
	return a.Rule
}

// RecalculateImpact recomputes every mapping of the owner with the current
// rule and writes only the values that changed. Running it twice in a row
// updates nothing the second time.
func (a *Aggregator) RecalculateImpact(ctx context.Context, owner string) (ImpactSummary, error) {
	if err := requireOwner(owner); err != nil {
		return ImpactSummary{}, err
	}
	rule := a.rule()
	sum := ImpactSummary{Rule: rule.Name()}
	err := a.d.withTx(ctx, "recalculate impact", func(tx *sql.Tx) error {
		mappings, err := a.d.Repo.ListMappings(ctx, tx, repo.MappingFilters{OwnerID: owner})
		if err != nil {
			return err
		}
		jobs, err := a.d.Repo.ListJobs(ctx, tx, repo.JobFilters{OwnerID: owner})
		if err != nil {
			return err
		}
		byID := make(map[string]domain.Job, len(jobs))
		for _, j := range jobs {
			byID[j.ID] = j
		}
		stats, err := a.d.Repo.TaskStatsByJob(ctx, tx, owner)
		if err != nil {
			return err
		}
		now := a.d.stamp()
		for _, m := range mappings {
			st := stats[m.JobID]
			v := rule.Impact(ImpactInput{
				Mapping:  m,
				Job:      byID[m.JobID],
				Progress: JobProgress{TotalTasks: st.Total, CompletedTasks: st.Completed, CompletedHours: st.CompletedHours},
			})
			sum.Evaluated++
			if math.IsNaN(v) || math.IsInf(v, 0) || v == m.PIImpactValue {
				continue
			}
			if err := a.d.Repo.SetMappingImpact(ctx, tx, owner, m.ID, v, now); err != nil {
				return err
			}
			sum.Updated++
		}
		if sum.Updated == 0 {
			return nil
		}
		return a.d.Events.Append(ctx, tx, events.ImpactRecalculated, owner, "mapping", "", events.EventPayload{
			"rule": sum.Rule, "evaluated": sum.Evaluated, "updated": sum.Updated,
		})
	})
	if err != nil {
		return ImpactSummary{}, err
	}
	a.d.Log.Info("impact recalculated", "owner", owner, "rule", sum.Rule, "evaluated", sum.Evaluated, "updated", sum.Updated)
	return sum, nil
}

// Totals rolls mapping impact up to every PI and business function of the
// owner, and PI progress up to every QBO. All reads share one transaction.
func (a *Aggregator) Totals(ctx context.Context, owner string) (ImpactTotals, error) {
	if err := requireOwner(owner); err != nil {
		return ImpactTotals{}, err
	}
	var (
		pis         []domain.PI
		bfs         []domain.BusinessFunction
		jobs        []domain.Job
		mappings    []domain.Mapping
		qbos        []domain.QBO
		qboMappings []domain.QBOMapping
	)
	r := a.d.Repo
	err := a.d.withTx(ctx, "impact totals", func(tx *sql.Tx) error {
		var err error
		if pis, err = r.ListPIs(ctx, tx, owner); err != nil {
			return err
		}
		if bfs, err = r.ListBusinessFunctions(ctx, tx, owner); err != nil {
			return err
		}
		if jobs, err = r.ListJobs(ctx, tx, repo.JobFilters{OwnerID: owner}); err != nil {
			return err
		}
		if mappings, err = r.ListMappings(ctx, tx, repo.MappingFilters{OwnerID: owner}); err != nil {
			return err
		}
		if qbos, err = r.ListQBOs(ctx, tx, owner); err != nil {
			return err
		}
		qboMappings, err = r.ListQBOMappings(ctx, tx, repo.QBOMappingFilters{OwnerID: owner})
		return err
	})
	if err != nil {
		return ImpactTotals{}, err
	}
	jobBF := map[string]string{}
	for _, j := range jobs {
		if j.BusinessFunctionID != nil {
			jobBF[j.ID] = *j.BusinessFunctionID
		}
	}
	piImpact := map[string]float64{}
	piCount := map[string]int{}
	bfImpact := map[string]float64{}
	for _, m := range mappings {
		piImpact[m.PIID] += m.PIImpactValue
		piCount[m.PIID]++
		if bf, ok := jobBF[m.JobID]; ok {
			bfImpact[bf] += m.PIImpactValue
		}
	}
	out := ImpactTotals{
		PIs:               make([]domain.PITotal, 0, len(pis)),
		BusinessFunctions: make([]domain.BusinessFunctionTotal, 0, len(bfs)),
		QBOs:              make([]domain.QBOTotal, 0, len(qbos)),
	}
	piProgress := map[string]float64{}
	for _, p := range pis {
		t := domain.PITotal{
			PIID:         p.ID,
			Name:         p.Name,
			Target:       p.TargetValue,
			Impact:       piImpact[p.ID],
			MappingCount: piCount[p.ID],
		}
		if p.TargetValue != 0 {
			t.Progress = t.Impact / p.TargetValue
		}
		piProgress[p.ID] = t.Progress
		out.PIs = append(out.PIs, t)
	}
	for _, b := range bfs {
		out.BusinessFunctions = append(out.BusinessFunctions, domain.BusinessFunctionTotal{
			BusinessFunctionID: b.ID,
			Name:               b.Name,
			JobCount:           b.JobCount,
			Impact:             bfImpact[b.ID],
		})
	}
	// A QBO earns each mapping's qbo_impact scaled by the mapped PI's progress.
	qboImpact := map[string]float64{}
	qboCount := map[string]int{}
	for _, m := range qboMappings {
		qboImpact[m.QBOID] += m.QBOImpact * piProgress[m.PIID]
		qboCount[m.QBOID]++
	}
	for _, q := range qbos {
		t := domain.QBOTotal{
			QBOID:        q.ID,
			Name:         q.Name,
			Target:       q.TargetValue,
			Impact:       qboImpact[q.ID],
			MappingCount: qboCount[q.ID],
		}
		if q.TargetValue != 0 {
			t.Progress = t.Impact / q.TargetValue
		}
		out.QBOs = append(out.QBOs, t)
	}
	return out, nil
}

type QBOMappingInput struct {
	ID        string
	PIID      string
	QBOID     string
	QBOImpact float64
	Notes     string
}

type QBOMappingPatch struct {
	QBOImpact *float64
	Notes     *string
}

type QBOMappingFilter struct {
	PIID  string
	QBOID string
}

// CreateQBOMapping links a PI to a QBO. Both names are captured now.
func (a *Aggregator) CreateQBOMapping(ctx context.Context, owner string, in QBOMappingInput) (domain.QBOMapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBOMapping{}, err
	}
	if in.PIID == "" {
		return domain.QBOMapping{}, invalid("pi_id", "is required")
	}
	if in.QBOID == "" {
		return domain.QBOMapping{}, invalid("qbo_id", "is required")
	}
	if err := finite("qbo_impact", &in.QBOImpact); err != nil {
		return domain.QBOMapping{}, err
	}
	var out domain.QBOMapping
	err := a.d.withTx(ctx, "create qbo mapping", func(tx *sql.Tx) error {
		pi, err := a.d.Repo.GetPI(ctx, tx, owner, in.PIID)
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("pi_id", "pi %s does not exist", in.PIID)
		}
		if err != nil {
			return err
		}
		q, err := a.d.Repo.GetQBO(ctx, tx, owner, in.QBOID)
		if errors.Is(err, repo.ErrNotFound) {
			return invalid("qbo_id", "qbo %s does not exist", in.QBOID)
		}
		if err != nil {
			return err
		}
		now := a.d.stamp()
		out = domain.QBOMapping{
			ID:        newID(in.ID),
			OwnerID:   owner,
			PIID:      pi.ID,
			QBOID:     q.ID,
			PIName:    pi.Name,
			QBOName:   q.Name,
			QBOImpact: in.QBOImpact,
			Notes:     in.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.d.Repo.InsertQBOMapping(ctx, tx, out); err != nil {
			return err
		}
		return a.d.Events.Append(ctx, tx, events.QBOMappingCreated, owner, "qbo_mapping", out.ID, events.EventPayload{"pi_id": pi.ID, "qbo_id": q.ID})
	})
	if err != nil {
		return domain.QBOMapping{}, err
	}
	return out, nil
}

func (a *Aggregator) GetQBOMapping(ctx context.Context, owner, id string) (domain.QBOMapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBOMapping{}, err
	}
	m, err := a.d.Repo.GetQBOMapping(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return m, notFound("qbo mapping", id)
	}
	return m, storeErr("get qbo mapping", err)
}

func (a *Aggregator) ListQBOMappings(ctx context.Context, owner string, f QBOMappingFilter) ([]domain.QBOMapping, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := a.d.Repo.ListQBOMappings(ctx, nil, repo.QBOMappingFilters{OwnerID: owner, PIID: f.PIID, QBOID: f.QBOID})
	return res, storeErr("list qbo mappings", err)
}

func (a *Aggregator) UpdateQBOMapping(ctx context.Context, owner, id string, p QBOMappingPatch) (domain.QBOMapping, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBOMapping{}, err
	}
	if err := finite("qbo_impact", p.QBOImpact); err != nil {
		return domain.QBOMapping{}, err
	}
	var out domain.QBOMapping
	err := a.d.withTx(ctx, "update qbo mapping", func(tx *sql.Tx) error {
		cur, err := a.d.Repo.GetQBOMapping(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("qbo mapping", id)
		}
		if err != nil {
			return err
		}
		if p.QBOImpact != nil {
			cur.QBOImpact = *p.QBOImpact
		}
		if p.Notes != nil {
			cur.Notes = *p.Notes
		}
		cur.UpdatedAt = a.d.stamp()
		if err := a.d.Repo.UpdateQBOMapping(ctx, tx, cur); err != nil {
			return err
		}
		out = cur
		return a.d.Events.Append(ctx, tx, events.QBOMappingUpdated, owner, "qbo_mapping", id, nil)
	})
	if err != nil {
		return domain.QBOMapping{}, err
	}
	return out, nil
}

func (a *Aggregator) DeleteQBOMapping(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := a.d.withTx(ctx, "delete qbo mapping", func(tx *sql.Tx) error {
		var err error
		if deleted, err = a.d.Repo.DeleteQBOMapping(ctx, tx, owner, id); err != nil || !deleted {
			return err
		}
		return a.d.Events.Append(ctx, tx, events.QBOMappingDeleted, owner, "qbo_mapping", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
