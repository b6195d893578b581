package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smn/consular/scheduler"
)

func TestPutAppLabels_WritesEveryLabel(t *testing.T) {
	b, _, cat := newTestBridge(t)
	app := scheduler.App{ID: "/my-app", Labels: map[string]string{"team": "core", "env": "prod"}}

	require.NoError(t, b.putAppLabels(context.Background(), app))

	require.Equal(t, "core", cat.kv["consular/my-app/team"])
	require.Equal(t, "prod", cat.kv["consular/my-app/env"])
}

func TestCleanAppLabels_DeletesStaleKeys(t *testing.T) {
	b, _, cat := newTestBridge(t)
	app := scheduler.App{ID: "/my-app", Labels: map[string]string{"team": "core"}}
	cat.kv["consular/my-app/team"] = "core"
	cat.kv["consular/my-app/stale"] = "gone"

	require.NoError(t, b.cleanAppLabels(context.Background(), app))

	require.Equal(t, "core", cat.kv["consular/my-app/team"])
	_, ok := cat.kv["consular/my-app/stale"]
	require.False(t, ok)
}

func TestCleanAppLabels_EmptyLabelSetDeletesSubtree(t *testing.T) {
	b, _, cat := newTestBridge(t)
	app := scheduler.App{ID: "/my-app", Labels: map[string]string{}}
	cat.kv["consular/my-app/team"] = "core"
	cat.kv["consular/my-app/env"] = "prod"

	require.NoError(t, b.cleanAppLabels(context.Background(), app))

	require.Empty(t, cat.kv)
}

func TestSyncAppLabels_PutAndCleanBothRun(t *testing.T) {
	b, _, cat := newTestBridge(t)
	app := scheduler.App{ID: "/my-app", Labels: map[string]string{"team": "core"}}
	cat.kv["consular/my-app/stale"] = "gone"

	require.NoError(t, b.syncAppLabels(context.Background(), app))

	require.Equal(t, "core", cat.kv["consular/my-app/team"])
	_, ok := cat.kv["consular/my-app/stale"]
	require.False(t, ok)
}

func TestPurgeDeadAppLabels_RemovesSubtreeForDeadApp(t *testing.T) {
	b, _, cat := newTestBridge(t)
	cat.kv["consular/live-app/team"] = "core"
	cat.kv["consular/dead-app/team"] = "old"
	cat.kv["consular/dead-app/env"] = "old"

	apps := []scheduler.App{{ID: "/live-app"}}
	require.NoError(t, b.purgeDeadAppLabels(context.Background(), apps))

	require.Equal(t, "core", cat.kv["consular/live-app/team"])
	_, ok := cat.kv["consular/dead-app/team"]
	require.False(t, ok)
	_, ok = cat.kv["consular/dead-app/env"]
	require.False(t, ok)
}

func TestPurgeDeadAppLabels_NoLiveAppsLeavesNothing(t *testing.T) {
	b, _, cat := newTestBridge(t)
	cat.kv["consular/only-app/team"] = "core"

	require.NoError(t, b.purgeDeadAppLabels(context.Background(), nil))

	require.Empty(t, cat.kv)
}
