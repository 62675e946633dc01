package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobline/internal/config"
	"jobline/internal/events"
	"jobline/internal/logger"
	"jobline/internal/repo"
)

// Deps is the store handle and clock shared by every manager.
type Deps struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    *logger.Logger
	Now    func() time.Time
}

// Engine groups the managers built over one database.
type Engine struct {
	*Deps
	Tasks   *TaskManager
	Jobs    *JobManager
	Impact  *Aggregator
	Catalog *Catalog
}

func New(db *sql.DB, cfg *config.Config, log *logger.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	d := &Deps{
		DB:   db,
		Repo: repo.Repo{DB: db},
		Log:  log,
		Now:  time.Now,
	}
	d.Events = events.Writer{Now: d.now}
	tasks := &TaskManager{d: d}
	jobs := &JobManager{d: d, tasks: tasks}
	tasks.observer = jobs
	return Engine{
		Deps:    d,
		Tasks:   tasks,
		Jobs:    jobs,
		Impact:  &Aggregator{d: d, Rule: RuleFromConfig(cfg)},
		Catalog: &Catalog{d: d},
	}
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) stamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

// withTx runs fn in one immediate transaction and commits when it returns nil.
func (d *Deps) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		err = storeErr(op, err)
		if isStoreFailure(err) {
			d.Log.Error("store failure", "op", op, "error", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	return nil
}

func isStoreFailure(err error) bool {
	_, ok := err.(*StoreError)
	return ok
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return invalid("owner", "is required")
	}
	return nil
}

func newID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

const dateLayout = "2006-01-02"

// checkDate validates an optional calendar date. Empty clears.
func checkDate(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, *v); err != nil {
		return invalid(field, "must be a YYYY-MM-DD date")
	}
	return nil
}
