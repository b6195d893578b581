package bridge

import (
	"context"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/smn/consular/scheduler"
)

// labelKeyPrefix is the namespace subtree for one app's labels:
// consular/<app-name>/
func labelKeyPrefix(appName string) string {
	return LabelKeyPrefix + "/" + appName + "/"
}

// labelSyncAll runs syncAppLabels for every app concurrently.
func (b *Bridge) labelSyncAll(ctx context.Context, apps []scheduler.App) error {
	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, app := range apps {
		app := app
		g.Go(func() error {
			if err := b.syncAppLabels(ctx, app); err != nil {
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

// syncAppLabels mirrors app.Labels into the catalog KV store under
// labelKeyPrefix(appName). The put phase (write every current label) and
// the clean phase (delete every key no longer backed by a label) run
// concurrently; their relative order is unspecified because a key the
// clean phase deletes can never be one the put phase is writing.
func (b *Bridge) syncAppLabels(ctx context.Context, app scheduler.App) error {
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

	g.Go(func() error { record(b.putAppLabels(ctx, app)); return nil })
	g.Go(func() error { record(b.cleanAppLabels(ctx, app)); return nil })
	g.Wait()

	return errs.ErrorOrNil()
}

// putAppLabels writes every (key, value) pair in app.Labels, concurrently.
// An empty label set is a no-op here; cleanAppLabels is what removes a
// subtree down to nothing.
func (b *Bridge) putAppLabels(ctx context.Context, app scheduler.App) error {
	name := AppName(app.ID)

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for k, v := range app.Labels {
		key := labelKeyPrefix(name) + k
		value := v
		g.Go(func() error {
			if err := b.Catalog.PutKV(ctx, key, value); err != nil {
				b.Logger.Warn("error writing label", "app-id", app.ID, "key", key, "err", err)
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

// cleanAppLabels deletes every catalog key under the app's label subtree
// whose label-key is not present in app.Labels. An empty label set causes
// deletion of the entire subtree.
func (b *Bridge) cleanAppLabels(ctx context.Context, app scheduler.App) error {
	name := AppName(app.ID)
	prefix := labelKeyPrefix(name)

	keys, err := b.Catalog.ListKVKeys(ctx, prefix, "")
	if err != nil {
		return err
	}

	current := mapset.NewThreadUnsafeSet()
	for k := range app.Labels {
		current.Add(k)
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, key := range keys {
		labelKey := strings.TrimPrefix(key, prefix)
		if current.Contains(labelKey) {
			continue
		}
		toDelete := key
		g.Go(func() error {
			if err := b.Catalog.DeleteKV(ctx, toDelete, false); err != nil {
				b.Logger.Warn("error deleting stale label", "app-id", app.ID, "key", toDelete, "err", err)
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

// purgeDeadAppLabels deletes the entire label subtree of any app-name that
// no longer corresponds to a current scheduler app. It lists one entry
// per child directory by querying with separator "/", rather than every
// leaf key.
func (b *Bridge) purgeDeadAppLabels(ctx context.Context, apps []scheduler.App) error {
	entries, err := b.Catalog.ListKVKeys(ctx, LabelKeyPrefix+"/", "/")
	if err != nil {
		return err
	}

	liveNames := mapset.NewThreadUnsafeSet()
	for _, app := range apps {
		liveNames.Add(AppName(app.ID))
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, entry := range entries {
		// entry has the form "consular/<app-name>/"
		name := strings.TrimSuffix(strings.TrimPrefix(entry, LabelKeyPrefix+"/"), "/")
		if name == "" || liveNames.Contains(name) {
			continue
		}
		subtree := LabelKeyPrefix + "/" + name
		g.Go(func() error {
			if err := b.Catalog.DeleteKV(ctx, subtree, true); err != nil {
				b.Logger.Warn("error purging dead app label subtree", "app-name", name, "err", err)
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
