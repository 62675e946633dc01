package engine_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobline/internal/engine"
)

func TestJobCountsByBusinessFunction(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "", "Finance")
	require.NoError(t, err)
	for _, title := range []string{"close books", "audit"} {
		_, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: title, BusinessFunctionID: &f.ID})
		require.NoError(t, err)
	}
	env.job(t, "unassigned")

	counts, err := env.Engine.Impact.JobCountsByBusinessFunction(env.Ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{f.ID: 2}, counts)

	bfs, err := env.Engine.Catalog.ListBusinessFunctions(env.Ctx, owner)
	require.NoError(t, err)
	require.Len(t, bfs, 1)
	assert.Equal(t, 2, bfs[0].JobCount)

	other, err := env.Engine.Impact.JobCountsByBusinessFunction(env.Ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteBusinessFunctionDetachesJobs(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "", "Ops")
	require.NoError(t, err)
	j, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: "on-call", BusinessFunctionID: &f.ID})
	require.NoError(t, err)

	ok, err := env.Engine.Catalog.DeleteBusinessFunction(env.Ctx, owner, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := env.Engine.Jobs.Get(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Nil(t, got.BusinessFunctionID)
}

func TestCreateMappingRequiresExistingPI(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Migrate DB")
	_, err := env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: "ghost"})
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "pi_id", ve.Field)

	mappings, err := env.Engine.Impact.ListMappings(env.Ctx, owner, engine.MappingFilter{})
	require.NoError(t, err)
	assert.Empty(t, mappings)

	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Latency", TargetValue: 5})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: "ghost", PIID: pi.ID})
	require.ErrorIs(t, err, engine.ErrValidation)
}

func TestMappingSnapshotsNames(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Migrate DB")
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Cost", TargetValue: 8})
	require.NoError(t, err)
	m, err := env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: pi.ID, Notes: "first pass"})
	require.NoError(t, err)
	assert.Equal(t, "Migrate DB", m.JobName)
	assert.Equal(t, "Cost", m.PIName)
	assert.Equal(t, 8.0, m.PITarget)

	title := "Migrate DB to Postgres"
	_, err = env.Engine.Jobs.Update(env.Ctx, owner, j.ID, engine.JobPatch{Title: &title})
	require.NoError(t, err)
	name := "Hosting cost"
	target := 12.0
	_, err = env.Engine.Catalog.UpdatePI(env.Ctx, owner, pi.ID, engine.PIPatch{Name: &name, TargetValue: &target})
	require.NoError(t, err)

	got, err := env.Engine.Impact.GetMapping(env.Ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Migrate DB", got.JobName)
	assert.Equal(t, "Cost", got.PIName)
	assert.Equal(t, 8.0, got.PITarget)

	byJob, err := env.Engine.Impact.MappingsForJob(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Len(t, byJob, 1)
	byPI, err := env.Engine.Impact.MappingsForPI(env.Ctx, owner, pi.ID)
	require.NoError(t, err)
	assert.Len(t, byPI, 1)
	_, err = env.Engine.Impact.MappingsForPI(env.Ctx, owner, "ghost")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecalculateImpactCompletionShare(t *testing.T) {
	env := newTestEnv(t)
	half := env.job(t, "half")
	a := env.task(t, half.ID, "a")
	env.task(t, half.ID, "b")
	empty := env.job(t, "empty")
	finished := env.job(t, "finished")
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Throughput", TargetValue: 10})
	require.NoError(t, err)

	var ids []string
	for _, j := range []string{half.ID, empty.ID, finished.ID} {
		m, err := env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j, PIID: pi.ID, PIImpactValue: 3})
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	done := true
	_, err = env.Engine.Tasks.Update(env.Ctx, owner, a.ID, engine.TaskPatch{Completed: &done})
	require.NoError(t, err)
	_, err = env.Engine.Jobs.ToggleDone(env.Ctx, owner, []string{finished.ID}, true)
	require.NoError(t, err)

	sum, err := env.Engine.Impact.RecalculateImpact(env.Ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, engine.ImpactSummary{Evaluated: 3, Updated: 3, Rule: "completion_share"}, sum)

	want := []float64{5, 0, 10}
	for i, id := range ids {
		m, err := env.Engine.Impact.GetMapping(env.Ctx, owner, id)
		require.NoError(t, err)
		assert.InDelta(t, want[i], m.PIImpactValue, 1e-9)
	}

	again, err := env.Engine.Impact.RecalculateImpact(env.Ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Evaluated)
	assert.Equal(t, 0, again.Updated)
}

func TestRecalculateImpactCompletedHours(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "hours")
	h1, h2 := 2.0, 3.5
	a, err := env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{JobID: j.ID, Title: "a", RequiredHours: &h1, Completed: true})
	require.NoError(t, err)
	_, err = env.Engine.Tasks.Create(env.Ctx, owner, engine.TaskInput{JobID: j.ID, Title: "b", RequiredHours: &h2})
	require.NoError(t, err)
	assert.True(t, a.Completed)
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Hours", TargetValue: 100})
	require.NoError(t, err)
	m, err := env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: pi.ID})
	require.NoError(t, err)

	env.Engine.Impact.Rule = engine.CompletedHoursRule{Weight: 2}
	sum, err := env.Engine.Impact.RecalculateImpact(env.Ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "completed_hours", sum.Rule)
	got, err := env.Engine.Impact.GetMapping(env.Ctx, owner, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.PIImpactValue, 1e-9)
}

func TestPassthroughRuleKeepsValues(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "manual")
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "NPS", TargetValue: 50})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: pi.ID, PIImpactValue: 7})
	require.NoError(t, err)
	env.Engine.Impact.Rule = engine.PassthroughRule{}
	sum, err := env.Engine.Impact.RecalculateImpact(env.Ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Updated)
}

func TestImpactTotals(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "", "Platform")
	require.NoError(t, err)
	j1, err := env.Engine.Jobs.Create(env.Ctx, owner, engine.JobInput{Title: "j1", BusinessFunctionID: &f.ID})
	require.NoError(t, err)
	j2 := env.job(t, "j2")
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Availability", TargetValue: 20})
	require.NoError(t, err)
	idle, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Idle", TargetValue: 0})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j1.ID, PIID: pi.ID, PIImpactValue: 4})
	require.NoError(t, err)
	m2, err := env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j2.ID, PIID: pi.ID})
	require.NoError(t, err)
	six := 6.0
	_, err = env.Engine.Impact.UpdateMapping(env.Ctx, owner, m2.ID, engine.MappingPatch{PIImpactValue: &six})
	require.NoError(t, err)

	totals, err := env.Engine.Impact.Totals(env.Ctx, owner)
	require.NoError(t, err)
	require.Len(t, totals.PIs, 2)
	byID := map[string]float64{}
	for _, p := range totals.PIs {
		byID[p.PIID] = p.Progress
		if p.PIID == pi.ID {
			assert.Equal(t, 10.0, p.Impact)
			assert.Equal(t, 2, p.MappingCount)
		}
	}
	assert.InDelta(t, 0.5, byID[pi.ID], 1e-9)
	assert.Equal(t, 0.0, byID[idle.ID])
	require.Len(t, totals.BusinessFunctions, 1)
	assert.Equal(t, 4.0, totals.BusinessFunctions[0].Impact)
	assert.Equal(t, 1, totals.BusinessFunctions[0].JobCount)
}

func TestDeletePICascadesMappings(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "j")
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Churn", TargetValue: 1})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: pi.ID})
	require.NoError(t, err)
	ok, err := env.Engine.Catalog.DeletePI(env.Ctx, owner, pi.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	mappings, err := env.Engine.Impact.MappingsForJob(env.Ctx, owner, j.ID)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestCatalogValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "", " ")
	require.ErrorIs(t, err, engine.ErrValidation)
	_, err = env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: ""})
	require.ErrorIs(t, err, engine.ErrValidation)
	_, err = env.Engine.Catalog.UpdateBusinessFunction(env.Ctx, owner, "ghost", "x")
	require.ErrorIs(t, err, engine.ErrNotFound)
	_, err = env.Engine.Catalog.UpdatePI(env.Ctx, owner, "ghost", engine.PIPatch{})
	require.ErrorIs(t, err, engine.ErrNotFound)

	f, err := env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "bf-1", "Sales")
	require.NoError(t, err)
	assert.Equal(t, "bf-1", f.ID)
	_, err = env.Engine.Catalog.CreateBusinessFunction(env.Ctx, owner, "bf-1", "Sales again")
	require.ErrorIs(t, err, engine.ErrConflict)
	renamed, err := env.Engine.Catalog.UpdateBusinessFunction(env.Ctx, owner, f.ID, "Sales EMEA")
	require.NoError(t, err)
	assert.Equal(t, "Sales EMEA", renamed.Name)
}

func TestQBOTotalsFollowPIProgress(t *testing.T) {
	env := newTestEnv(t)
	j := env.job(t, "Ship cache")
	latency, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Latency", TargetValue: 10})
	require.NoError(t, err)
	cost, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "Cost", TargetValue: 0})
	require.NoError(t, err)
	_, err = env.Engine.Impact.CreateMapping(env.Ctx, owner, engine.MappingInput{JobID: j.ID, PIID: latency.ID, PIImpactValue: 5})
	require.NoError(t, err)
	q, err := env.Engine.Catalog.CreateQBO(env.Ctx, owner, engine.QBOInput{Name: "Faster checkout", TargetValue: 4})
	require.NoError(t, err)
	idle, err := env.Engine.Catalog.CreateQBO(env.Ctx, owner, engine.QBOInput{Name: "Idle"})
	require.NoError(t, err)

	m, err := env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: latency.ID, QBOID: q.ID, QBOImpact: 6})
	require.NoError(t, err)
	assert.Equal(t, "Latency", m.PIName)
	assert.Equal(t, "Faster checkout", m.QBOName)
	_, err = env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: cost.ID, QBOID: q.ID, QBOImpact: 100})
	require.NoError(t, err)

	totals, err := env.Engine.Impact.Totals(env.Ctx, owner)
	require.NoError(t, err)
	require.Len(t, totals.QBOs, 2)
	byID := map[string]int{}
	for i, qt := range totals.QBOs {
		byID[qt.QBOID] = i
	}
	got := totals.QBOs[byID[q.ID]]
	// Latency is at 50%, Cost has no target and contributes nothing.
	assert.InDelta(t, 3.0, got.Impact, 1e-9)
	assert.InDelta(t, 0.75, got.Progress, 1e-9)
	assert.Equal(t, 2, got.MappingCount)
	assert.Zero(t, totals.QBOs[byID[idle.ID]].Impact)
	assert.Zero(t, totals.QBOs[byID[idle.ID]].Progress)

	byPI, err := env.Engine.Impact.ListQBOMappings(env.Ctx, owner, engine.QBOMappingFilter{PIID: latency.ID})
	require.NoError(t, err)
	require.Len(t, byPI, 1)
	byQBO, err := env.Engine.Impact.ListQBOMappings(env.Ctx, owner, engine.QBOMappingFilter{QBOID: q.ID})
	require.NoError(t, err)
	assert.Len(t, byQBO, 2)

	ok, err := env.Engine.Catalog.DeletePI(env.Ctx, owner, latency.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	byQBO, err = env.Engine.Impact.ListQBOMappings(env.Ctx, owner, engine.QBOMappingFilter{QBOID: q.ID})
	require.NoError(t, err)
	assert.Len(t, byQBO, 1)
}

func TestQBOMappingValidation(t *testing.T) {
	env := newTestEnv(t)
	pi, err := env.Engine.Catalog.CreatePI(env.Ctx, owner, engine.PIInput{Name: "NPS", TargetValue: 50})
	require.NoError(t, err)
	q, err := env.Engine.Catalog.CreateQBO(env.Ctx, owner, engine.QBOInput{Name: "Retention", TargetValue: 1})
	require.NoError(t, err)

	var ve *engine.ValidationError
	_, err = env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: "ghost", QBOID: q.ID})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "pi_id", ve.Field)
	_, err = env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: pi.ID, QBOID: "ghost"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "qbo_id", ve.Field)
	_, err = env.Engine.Impact.CreateQBOMapping(env.Ctx, "bob", engine.QBOMappingInput{PIID: pi.ID, QBOID: q.ID})
	require.ErrorIs(t, err, engine.ErrValidation)
	_, err = env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: pi.ID, QBOID: q.ID, QBOImpact: math.Inf(1)})
	require.ErrorIs(t, err, engine.ErrValidation)

	m, err := env.Engine.Impact.CreateQBOMapping(env.Ctx, owner, engine.QBOMappingInput{PIID: pi.ID, QBOID: q.ID, QBOImpact: 0.2})
	require.NoError(t, err)
	v := 0.4
	notes := "revised"
	got, err := env.Engine.Impact.UpdateQBOMapping(env.Ctx, owner, m.ID, engine.QBOMappingPatch{QBOImpact: &v, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 0.4, got.QBOImpact)
	assert.Equal(t, "revised", got.Notes)

	_, err = env.Engine.Impact.GetQBOMapping(env.Ctx, "bob", m.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)

	ok, err := env.Engine.Catalog.DeleteQBO(env.Ctx, owner, q.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = env.Engine.Impact.GetQBOMapping(env.Ctx, owner, m.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
