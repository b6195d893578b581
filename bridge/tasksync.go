package bridge

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/smn/consular/catalog"
	"github.com/smn/consular/scheduler"
)

// taskSyncAll runs syncAppTasks for every app concurrently, aggregating
// every failure rather than stopping at the first.
func (b *Bridge) taskSyncAll(ctx context.Context, apps []scheduler.App) error {
	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, app := range apps {
		app := app
		g.Go(func() error {
			if err := b.syncAppTasks(ctx, app); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs.ErrorOrNil()
}

// syncAppTasks lists appID's tasks and registers each of them at its
// task's agent endpoint, concurrently. Registrations are idempotent in
// the catalog so no bridge-side de-duplication is needed.
func (b *Bridge) syncAppTasks(ctx context.Context, app scheduler.App) error {
	tasks, err := b.Scheduler.ListAppTasks(ctx, app.ID, true)
	if err != nil {
		return err
	}

	name := AppName(app.ID)
	tags := b.ownershipTags(app.ID)

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			reg := catalog.Registration{
				Name:    name,
				ID:      task.ID,
				Address: task.Host,
				Port:    task.Port(),
				Tags:    tags,
			}
			if err := b.Catalog.RegisterService(ctx, b.agentEndpoint(task.Host), reg); err != nil {
				b.Logger.Warn("error registering task", "app-id", app.ID, "task-id", task.ID, "err", err)
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errs.ErrorOrNil()
}
