package bridge

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// PurgeDeadServices scans every catalog node's local agent for services
// bearing this bridge's ownership tag and deregisters any whose task-id no
// longer appears in the scheduler's current task list for the correlated
// app — including when the app itself no longer exists.
func (b *Bridge) PurgeDeadServices(ctx context.Context) error {
	nodes, err := b.Catalog.ListNodes(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, node := range nodes {
		agentEndpoint := b.agentEndpoint(node.Address)
		g.Go(func() error {
			if err := b.purgeDeadAgentServices(ctx, agentEndpoint); err != nil {
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

// purgeDeadAgentServices lists the services registered at agentEndpoint,
// groups the ones tagged as ours by their correlated app-id, and purges
// each group against the scheduler's current task list.
func (b *Bridge) purgeDeadAgentServices(ctx context.Context, agentEndpoint string) error {
	services, err := b.Catalog.ListAgentServices(ctx, agentEndpoint)
	if err != nil {
		return err
	}

	serviceIDsByAppID := make(map[string][]string)
	var errs *multierror.Error
	regTag := b.regIDTag()

	for serviceID, svc := range services {
		if !hasTag(svc.Tags, regTag) {
			// Not ours; purge never touches services it doesn't own.
			continue
		}

		appID, ok, err := extractAppID(serviceID, svc.Tags)
		if err != nil {
			b.Logger.Warn("service has ambiguous ownership, skipping", "service-id", serviceID, "agent-endpoint", agentEndpoint)
			errs = multierror.Append(errs, err)
			continue
		}
		if !ok {
			b.Logger.Warn("service carries reg-id tag but no app-id tag, cannot correlate, skipping",
				"service-id", serviceID, "agent-endpoint", agentEndpoint)
			continue
		}

		serviceIDsByAppID[appID] = append(serviceIDsByAppID[appID], serviceID)
	}

	var g errgroup.Group
	var mu sync.Mutex

	for appID, serviceIDs := range serviceIDsByAppID {
		appID, serviceIDs := appID, serviceIDs
		g.Go(func() error {
			if err := b.purgeServiceIfDead(ctx, agentEndpoint, appID, serviceIDs); err != nil {
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

// purgeServiceIfDead deregisters, from agentEndpoint, every service id in
// serviceIDs that is not among appID's current scheduler tasks. A missing
// app is tolerated as an empty task set (raiseOnMissing=false), so that an
// app deleted between the node list and this per-app task fetch is treated
// as having no live tasks at all rather than aborting the purge — the
// asymmetry with syncAppTasks is intentional.
func (b *Bridge) purgeServiceIfDead(ctx context.Context, agentEndpoint, appID string, serviceIDs []string) error {
	tasks, err := b.Scheduler.ListAppTasks(ctx, appID, false)
	if err != nil {
		return err
	}

	current := mapset.NewThreadUnsafeSet()
	for _, t := range tasks {
		current.Add(t.ID)
	}

	var g errgroup.Group
	var mu sync.Mutex
	var errs *multierror.Error

	for _, serviceID := range serviceIDs {
		if current.Contains(serviceID) {
			continue
		}
		id := serviceID
		g.Go(func() error {
			b.Logger.Info("purging orphaned service", "app-id", appID, "service-id", id, "agent-endpoint", agentEndpoint)
			if err := b.Catalog.DeregisterService(ctx, agentEndpoint, id); err != nil {
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
