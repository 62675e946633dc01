package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"jobline/internal/domain"
	"jobline/internal/events"
	"jobline/internal/repo"
)

// Catalog manages business functions, PIs, QBOs and task owners.
type Catalog struct {
	d *Deps
}

type PIInput struct {
	ID          string
	Name        string
	TargetValue float64
}

type PIPatch struct {
	Name        *string
	TargetValue *float64
}

func requireName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "is required")
	}
	return name, nil
}

func (c *Catalog) CreateBusinessFunction(ctx context.Context, owner, id, name string) (domain.BusinessFunction, error) {
	if err := requireOwner(owner); err != nil {
		return domain.BusinessFunction{}, err
	}
	name, err := requireName(name)
	if err != nil {
		return domain.BusinessFunction{}, err
	}
	now := c.d.stamp()
	b := domain.BusinessFunction{ID: newID(id), OwnerID: owner, Name: name, CreatedAt: now, UpdatedAt: now}
	err = c.d.withTx(ctx, "create business function", func(tx *sql.Tx) error {
		if err := c.d.Repo.InsertBusinessFunction(ctx, tx, b); err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.BusinessFnCreated, owner, "business_function", b.ID, events.EventPayload{"name": name})
	})
	if err != nil {
		return domain.BusinessFunction{}, err
	}
	return b, nil
}

func (c *Catalog) GetBusinessFunction(ctx context.Context, owner, id string) (domain.BusinessFunction, error) {
	if err := requireOwner(owner); err != nil {
		return domain.BusinessFunction{}, err
	}
	b, err := c.d.Repo.GetBusinessFunction(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return b, notFound("business function", id)
	}
	return b, storeErr("get business function", err)
}

// ListBusinessFunctions returns the owner's functions with their job counts.
func (c *Catalog) ListBusinessFunctions(ctx context.Context, owner string) ([]domain.BusinessFunction, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := c.d.Repo.ListBusinessFunctions(ctx, nil, owner)
	return res, storeErr("list business functions", err)
}

func (c *Catalog) UpdateBusinessFunction(ctx context.Context, owner, id, name string) (domain.BusinessFunction, error) {
	if err := requireOwner(owner); err != nil {
		return domain.BusinessFunction{}, err
	}
	name, err := requireName(name)
	if err != nil {
		return domain.BusinessFunction{}, err
	}
	var out domain.BusinessFunction
	err = c.d.withTx(ctx, "update business function", func(tx *sql.Tx) error {
		if err := c.d.Repo.RenameBusinessFunction(ctx, tx, owner, id, name, c.d.stamp()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("business function", id)
			}
			return err
		}
		if err := c.d.Events.Append(ctx, tx, events.BusinessFnUpdated, owner, "business_function", id, events.EventPayload{"name": name}); err != nil {
			return err
		}
		var err error
		out, err = c.d.Repo.GetBusinessFunction(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return domain.BusinessFunction{}, err
	}
	return out, nil
}

// DeleteBusinessFunction removes the function and detaches its jobs.
func (c *Catalog) DeleteBusinessFunction(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := c.d.withTx(ctx, "delete business function", func(tx *sql.Tx) error {
		var err error
		if deleted, err = c.d.Repo.DeleteBusinessFunction(ctx, tx, owner, id); err != nil || !deleted {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.BusinessFnDeleted, owner, "business_function", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (c *Catalog) CreatePI(ctx context.Context, owner string, in PIInput) (domain.PI, error) {
	if err := requireOwner(owner); err != nil {
		return domain.PI{}, err
	}
	name, err := requireName(in.Name)
	if err != nil {
		return domain.PI{}, err
	}
	if err := finite("target_value", &in.TargetValue); err != nil {
		return domain.PI{}, err
	}
	now := c.d.stamp()
	p := domain.PI{ID: newID(in.ID), OwnerID: owner, Name: name, TargetValue: in.TargetValue, CreatedAt: now, UpdatedAt: now}
	err = c.d.withTx(ctx, "create pi", func(tx *sql.Tx) error {
		if err := c.d.Repo.InsertPI(ctx, tx, p); err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.PICreated, owner, "pi", p.ID, events.EventPayload{"name": name, "target_value": p.TargetValue})
	})
	if err != nil {
		return domain.PI{}, err
	}
	return p, nil
}

func (c *Catalog) GetPI(ctx context.Context, owner, id string) (domain.PI, error) {
	if err := requireOwner(owner); err != nil {
		return domain.PI{}, err
	}
	p, err := c.d.Repo.GetPI(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return p, notFound("pi", id)
	}
	return p, storeErr("get pi", err)
}

func (c *Catalog) ListPIs(ctx context.Context, owner string) ([]domain.PI, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := c.d.Repo.ListPIs(ctx, nil, owner)
	return res, storeErr("list pis", err)
}

// UpdatePI changes the PI itself. Existing mappings keep their snapshots.
func (c *Catalog) UpdatePI(ctx context.Context, owner, id string, p PIPatch) (domain.PI, error) {
	if err := requireOwner(owner); err != nil {
		return domain.PI{}, err
	}
	if p.Name != nil {
		name, err := requireName(*p.Name)
		if err != nil {
			return domain.PI{}, err
		}
		p.Name = &name
	}
	if err := finite("target_value", p.TargetValue); err != nil {
		return domain.PI{}, err
	}
	var out domain.PI
	err := c.d.withTx(ctx, "update pi", func(tx *sql.Tx) error {
		if err := c.d.Repo.UpdatePI(ctx, tx, owner, id, p.Name, p.TargetValue, c.d.stamp()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("pi", id)
			}
			return err
		}
		var err error
		out, err = c.d.Repo.GetPI(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("pi", id)
		}
		if err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.PIUpdated, owner, "pi", id, nil)
	})
	if err != nil {
		return domain.PI{}, err
	}
	return out, nil
}

// DeletePI removes the PI and its mappings.
func (c *Catalog) DeletePI(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := c.d.withTx(ctx, "delete pi", func(tx *sql.Tx) error {
		var err error
		if deleted, err = c.d.Repo.DeletePI(ctx, tx, owner, id); err != nil || !deleted {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.PIDeleted, owner, "pi", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// CreateTaskOwner registers a person tasks can be assigned to.
func (c *Catalog) CreateTaskOwner(ctx context.Context, owner, id, name string) (domain.TaskOwner, error) {
	if err := requireOwner(owner); err != nil {
		return domain.TaskOwner{}, err
	}
	name, err := requireName(name)
	if err != nil {
		return domain.TaskOwner{}, err
	}
	now := c.d.stamp()
	o := domain.TaskOwner{ID: newID(id), OwnerID: owner, Name: name, CreatedAt: now, UpdatedAt: now}
	err = c.d.withTx(ctx, "create task owner", func(tx *sql.Tx) error {
		if err := c.d.Repo.InsertTaskOwner(ctx, tx, o); err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.TaskOwnerCreated, owner, "task_owner", o.ID, events.EventPayload{"name": name})
	})
	if err != nil {
		return domain.TaskOwner{}, err
	}
	return o, nil
}

func (c *Catalog) GetTaskOwner(ctx context.Context, owner, id string) (domain.TaskOwner, error) {
	if err := requireOwner(owner); err != nil {
		return domain.TaskOwner{}, err
	}
	o, err := c.d.Repo.GetTaskOwner(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return o, notFound("task owner", id)
	}
	return o, storeErr("get task owner", err)
}

func (c *Catalog) ListTaskOwners(ctx context.Context, owner string) ([]domain.TaskOwner, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := c.d.Repo.ListTaskOwners(ctx, nil, owner)
	return res, storeErr("list task owners", err)
}

func (c *Catalog) UpdateTaskOwner(ctx context.Context, owner, id, name string) (domain.TaskOwner, error) {
	if err := requireOwner(owner); err != nil {
		return domain.TaskOwner{}, err
	}
	name, err := requireName(name)
	if err != nil {
		return domain.TaskOwner{}, err
	}
	var out domain.TaskOwner
	err = c.d.withTx(ctx, "update task owner", func(tx *sql.Tx) error {
		if err := c.d.Repo.RenameTaskOwner(ctx, tx, owner, id, name, c.d.stamp()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("task owner", id)
			}
			return err
		}
		if err := c.d.Events.Append(ctx, tx, events.TaskOwnerUpdated, owner, "task_owner", id, events.EventPayload{"name": name}); err != nil {
			return err
		}
		var err error
		out, err = c.d.Repo.GetTaskOwner(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return domain.TaskOwner{}, err
	}
	return out, nil
}

// DeleteTaskOwner removes the person and unassigns their tasks.
func (c *Catalog) DeleteTaskOwner(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := c.d.withTx(ctx, "delete task owner", func(tx *sql.Tx) error {
		var err error
		if deleted, err = c.d.Repo.DeleteTaskOwner(ctx, tx, owner, id, c.d.stamp()); err != nil || !deleted {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.TaskOwnerDeleted, owner, "task_owner", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

type QBOInput struct {
	ID          string
	Name        string
	TargetValue float64
}

type QBOPatch struct {
	Name        *string
	TargetValue *float64
}

func (c *Catalog) CreateQBO(ctx context.Context, owner string, in QBOInput) (domain.QBO, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBO{}, err
	}
	name, err := requireName(in.Name)
	if err != nil {
		return domain.QBO{}, err
	}
	if err := finite("target_value", &in.TargetValue); err != nil {
		return domain.QBO{}, err
	}
	now := c.d.stamp()
	q := domain.QBO{ID: newID(in.ID), OwnerID: owner, Name: name, TargetValue: in.TargetValue, CreatedAt: now, UpdatedAt: now}
	err = c.d.withTx(ctx, "create qbo", func(tx *sql.Tx) error {
		if err := c.d.Repo.InsertQBO(ctx, tx, q); err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.QBOCreated, owner, "qbo", q.ID, events.EventPayload{"name": name, "target_value": q.TargetValue})
	})
	if err != nil {
		return domain.QBO{}, err
	}
	return q, nil
}

func (c *Catalog) GetQBO(ctx context.Context, owner, id string) (domain.QBO, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBO{}, err
	}
	q, err := c.d.Repo.GetQBO(ctx, nil, owner, id)
	if errors.Is(err, repo.ErrNotFound) {
		return q, notFound("qbo", id)
	}
	return q, storeErr("get qbo", err)
}

func (c *Catalog) ListQBOs(ctx context.Context, owner string) ([]domain.QBO, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	res, err := c.d.Repo.ListQBOs(ctx, nil, owner)
	return res, storeErr("list qbos", err)
}

// UpdateQBO changes the QBO itself. Mappings keep their QBO name snapshot.
func (c *Catalog) UpdateQBO(ctx context.Context, owner, id string, p QBOPatch) (domain.QBO, error) {
	if err := requireOwner(owner); err != nil {
		return domain.QBO{}, err
	}
	if p.Name != nil {
		name, err := requireName(*p.Name)
		if err != nil {
			return domain.QBO{}, err
		}
		p.Name = &name
	}
	if err := finite("target_value", p.TargetValue); err != nil {
		return domain.QBO{}, err
	}
	var out domain.QBO
	err := c.d.withTx(ctx, "update qbo", func(tx *sql.Tx) error {
		if err := c.d.Repo.UpdateQBO(ctx, tx, owner, id, p.Name, p.TargetValue, c.d.stamp()); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("qbo", id)
			}
			return err
		}
		var err error
		out, err = c.d.Repo.GetQBO(ctx, tx, owner, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("qbo", id)
		}
		if err != nil {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.QBOUpdated, owner, "qbo", id, nil)
	})
	if err != nil {
		return domain.QBO{}, err
	}
	return out, nil
}

// DeleteQBO removes the QBO and its PI mappings.
func (c *Catalog) DeleteQBO(ctx context.Context, owner, id string) (bool, error) {
	if err := requireOwner(owner); err != nil {
		return false, err
	}
	var deleted bool
	err := c.d.withTx(ctx, "delete qbo", func(tx *sql.Tx) error {
		var err error
		if deleted, err = c.d.Repo.DeleteQBO(ctx, tx, owner, id); err != nil || !deleted {
			return err
		}
		return c.d.Events.Append(ctx, tx, events.QBODeleted, owner, "qbo", id, nil)
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
