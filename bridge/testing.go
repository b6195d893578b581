package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/smn/consular/catalog"
	"github.com/smn/consular/scheduler"
)

// fakeScheduler is an in-memory scheduler.Client double for tests.
type fakeScheduler struct {
	mu sync.Mutex

	apps  map[string]scheduler.App
	tasks map[string][]scheduler.Task // keyed by app id

	callbackURLs    []string
	subscribeResult bool

	getAppErr      error
	listAppsErr    error
	listTasksErr   error
	tasksFieldGone bool // simulate a missing "tasks" field
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		apps:            make(map[string]scheduler.App),
		tasks:           make(map[string][]scheduler.Task),
		subscribeResult: true,
	}
}

func (f *fakeScheduler) addApp(app scheduler.App, tasks ...scheduler.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[app.ID] = app
	f.tasks[app.ID] = tasks
}

func (f *fakeScheduler) ListEventSubscriptions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.callbackURLs...), nil
}

func (f *fakeScheduler) AddEventSubscription(ctx context.Context, callbackURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subscribeResult {
		return false, nil
	}
	f.callbackURLs = append(f.callbackURLs, callbackURL)
	return true, nil
}

func (f *fakeScheduler) ListApps(ctx context.Context) ([]scheduler.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listAppsErr != nil {
		return nil, f.listAppsErr
	}
	apps := make([]scheduler.App, 0, len(f.apps))
	for _, app := range f.apps {
		apps = append(apps, app)
	}
	return apps, nil
}

func (f *fakeScheduler) GetApp(ctx context.Context, appID string) (scheduler.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getAppErr != nil {
		return scheduler.App{}, f.getAppErr
	}
	app, ok := f.apps[appID]
	if !ok {
		return scheduler.App{}, &scheduler.UpstreamError{URL: appID, Status: 404}
	}
	return app, nil
}

func (f *fakeScheduler) ListAppTasks(ctx context.Context, appID string, raiseOnMissing bool) ([]scheduler.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listTasksErr != nil {
		return nil, f.listTasksErr
	}
	if f.tasksFieldGone {
		if raiseOnMissing {
			return nil, &scheduler.SchemaError{URL: appID, Field: "tasks"}
		}
		return nil, nil
	}
	tasks, ok := f.tasks[appID]
	if !ok {
		if raiseOnMissing {
			return nil, &scheduler.SchemaError{URL: appID, Field: "tasks"}
		}
		return nil, nil
	}
	return tasks, nil
}

var _ scheduler.Client = (*fakeScheduler)(nil)

// fakeCatalog is an in-memory catalog.Client double for tests.
type fakeCatalog struct {
	mu sync.Mutex

	// services is keyed by agentEndpoint then serviceID.
	services map[string]map[string]catalog.AgentService
	kv       map[string]string
	nodes    []catalog.Node

	registerErr func(agentEndpoint string) error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		services: make(map[string]map[string]catalog.AgentService),
		kv:       make(map[string]string),
	}
}

func (f *fakeCatalog) RegisterService(ctx context.Context, agentEndpoint string, reg catalog.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		if err := f.registerErr(agentEndpoint); err != nil {
			return err
		}
	}
	if f.services[agentEndpoint] == nil {
		f.services[agentEndpoint] = make(map[string]catalog.AgentService)
	}
	f.services[agentEndpoint][reg.ID] = catalog.AgentService{
		Service: reg.Name,
		ID:      reg.ID,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
	}
	return nil
}

func (f *fakeCatalog) DeregisterService(ctx context.Context, agentEndpoint string, serviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.services[agentEndpoint], serviceID)
	return nil
}

func (f *fakeCatalog) ListAgentServices(ctx context.Context, agentEndpoint string) (map[string]catalog.AgentService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]catalog.AgentService, len(f.services[agentEndpoint]))
	for k, v := range f.services[agentEndpoint] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCatalog) ListNodes(ctx context.Context) ([]catalog.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.Node(nil), f.nodes...), nil
}

func (f *fakeCatalog) PutKV(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *fakeCatalog) DeleteKV(ctx context.Context, key string, recurse bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if recurse {
		for k := range f.kv {
			if k == key || len(k) > len(key) && k[:len(key)+1] == key+"/" {
				delete(f.kv, k)
			}
		}
		return nil
	}
	delete(f.kv, key)
	return nil
}

func (f *fakeCatalog) ListKVKeys(ctx context.Context, prefix, separator string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if separator == "" {
		var keys []string
		for k := range f.kv {
			if hasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		return keys, nil
	}

	seen := make(map[string]bool)
	var entries []string
	for k := range f.kv {
		if !hasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		for i := 0; i < len(rest); i++ {
			if string(rest[i]) == separator {
				entry := fmt.Sprintf("%s%s%s", prefix, rest[:i], separator)
				if !seen[entry] {
					seen[entry] = true
					entries = append(entries, entry)
				}
				break
			}
		}
	}
	return entries, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

var _ catalog.Client = (*fakeCatalog)(nil)
