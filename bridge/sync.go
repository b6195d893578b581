package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/smn/consular/scheduler"
)

// Sync performs a full reconciliation between the scheduler and the
// catalog: label sync and task sync for every app, and (when purge is
// true) the purge engine and the app-level label purge. All sub-operations
// progress in parallel and the call resolves only once every one of them
// has completed; a failure in one does not roll back progress made by the
// others.
func (b *Bridge) Sync(ctx context.Context, purge bool) error {
	apps, err := b.Scheduler.ListApps(ctx)
	if err != nil {
		return err
	}

	if err := checkNamespaceClash(apps); err != nil {
		return err
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierror.Append(errs, err)
		mu.Unlock()
	}

	g.Go(func() error { record(b.labelSyncAll(ctx, apps)); return nil })
	g.Go(func() error { record(b.taskSyncAll(ctx, apps)); return nil })
	if purge {
		g.Go(func() error { record(b.PurgeDeadServices(ctx)); return nil })
		g.Go(func() error { record(b.purgeDeadAppLabels(ctx, apps)); return nil })
	}
	g.Wait()

	return errs.ErrorOrNil()
}

// syncApp runs label sync and task sync for a single app concurrently.
// This is what a TASK_RUNNING event triggers: rather than registering only
// the one task that just started, the whole app is re-synced so
// late-discovered labels and concurrently-started sibling tasks converge
// too.
func (b *Bridge) syncApp(ctx context.Context, app scheduler.App) error {
	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierror.Append(errs, err)
		mu.Unlock()
	}

	g.Go(func() error { record(b.syncAppLabels(ctx, app)); return nil })
	g.Go(func() error { record(b.syncAppTasks(ctx, app)); return nil })
	g.Wait()

	return errs.ErrorOrNil()
}

// checkNamespaceClash enforces that app-name is an injective function of
// the current app set. It runs before any catalog write so a clash leaves
// no side effects.
func checkNamespaceClash(apps []scheduler.App) error {
	byName := make(map[string][]string)
	for _, app := range apps {
		name := AppName(app.ID)
		byName[name] = append(byName[name], app.ID)
	}

	collisions := make(map[string][]string)
	for name, ids := range byName {
		if len(ids) > 1 {
			sorted := append([]string(nil), ids...)
			sort.Strings(sorted)
			collisions[name] = sorted
		}
	}

	if len(collisions) == 0 {
		return nil
	}
	return &NamespaceClash{Collisions: collisions}
}
