package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := NewHTTPClient(srv.URL, srv.Client(), nil, false)
	return client, srv.Close
}

func TestListEventSubscriptions(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/eventSubscriptions", r.URL.Path)
		w.Write([]byte(`{"callbackUrls":["http://localhost:7000/events"]}`))
	})
	defer closeFn()

	urls, err := client.ListEventSubscriptions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"http://localhost:7000/events"}, urls)
}

func TestListEventSubscriptions_MissingField(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer closeFn()

	_, err := client.ListEventSubscriptions(context.Background())
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "callbackUrls", schemaErr.Field)
}

func TestAddEventSubscription_OKReturnsTrue(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "http://localhost:7000/events", r.URL.Query().Get("callbackUrl"))
		w.WriteHeader(http.StatusOK)
	})
	defer closeFn()

	ok, err := client.AddEventSubscription(context.Background(), "http://localhost:7000/events")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddEventSubscription_NonOKReturnsFalse(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	ok, err := client.AddEventSubscription(context.Background(), "http://localhost:7000/events")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListApps(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/apps", r.URL.Path)
		w.Write([]byte(`{"apps":[{"id":"/my-app","labels":{"team":"core"}}]}`))
	})
	defer closeFn()

	apps, err := client.ListApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "/my-app", apps[0].ID)
	require.Equal(t, "core", apps[0].Labels["team"])
}

func TestGetApp(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/apps/my-app", r.URL.Path)
		w.Write([]byte(`{"app":{"id":"/my-app","labels":{}}}`))
	})
	defer closeFn()

	app, err := client.GetApp(context.Background(), "/my-app")
	require.NoError(t, err)
	require.Equal(t, "/my-app", app.ID)
}

func TestGetApp_NonSuccessStatus(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer closeFn()

	_, err := client.GetApp(context.Background(), "/my-app")
	require.Error(t, err)
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusNotFound, upstreamErr.Status)
}

func TestListAppTasks(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/apps/my-app/tasks", r.URL.Path)
		w.Write([]byte(`{"tasks":[{"id":"my-app_0-1","host":"slave-1234.acme.org","ports":[31372]}]}`))
	})
	defer closeFn()

	tasks, err := client.ListAppTasks(context.Background(), "/my-app", true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "my-app_0-1", tasks[0].ID)
	require.Equal(t, 31372, tasks[0].Port())
}

func TestListAppTasks_MissingFieldRaises(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer closeFn()

	_, err := client.ListAppTasks(context.Background(), "/my-app", true)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestListAppTasks_MissingFieldToleratedWhenNotRaising(t *testing.T) {
	client, closeFn := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer closeFn()

	tasks, err := client.ListAppTasks(context.Background(), "/my-app", false)
	require.NoError(t, err)
	require.Empty(t, tasks)
}
