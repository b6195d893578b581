package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestRun_Defaults(t *testing.T) {
	var cmd Command
	cmd.init()
	require.Equal(t, 30*time.Second, cmd.flagSyncPeriod)
	require.True(t, cmd.flagPurge)
	require.Equal(t, "info", cmd.flagLogLevel)
}

func TestRun_RequiresSchedulerEndpoint(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := Command{UI: ui}
	code := cmd.Run(nil)
	require.Equal(t, 1, code)
	require.Contains(t, ui.ErrorWriter.String(), "-scheduler-endpoint")
}

func TestRun_RequiresCatalogEndpoint(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := Command{UI: ui}
	code := cmd.Run([]string{"-scheduler-endpoint", "http://localhost:8080"})
	require.Equal(t, 1, code)
	require.Contains(t, ui.ErrorWriter.String(), "-catalog-endpoint")
}

func TestRun_RequiresRegistrationID(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := Command{UI: ui}
	code := cmd.Run([]string{
		"-scheduler-endpoint", "http://localhost:8080",
		"-catalog-endpoint", "http://localhost:8500",
	})
	require.Equal(t, 1, code)
	require.Contains(t, ui.ErrorWriter.String(), "-registration-id")
}

// A minimal scheduler + catalog pair that accepts the callback subscription
// and returns an empty app list, enough to exercise startup through to a
// clean signal-driven shutdown.
func fakeUpstreams(t *testing.T) (schedulerURL, catalogURL string) {
	t.Helper()

	sched := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/eventSubscriptions":
			json.NewEncoder(w).Encode(map[string]interface{}{"callbackUrls": []string{}})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/eventSubscriptions":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/apps":
			json.NewEncoder(w).Encode(map[string]interface{}{"apps": []interface{}{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(sched.Close)

	cat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cat.Close)

	return sched.URL, cat.URL
}

func runAsync(cmd *Command, args []string) <-chan int {
	exitCh := make(chan int, 1)
	go func() { exitCh <- cmd.Run(args) }()
	return exitCh
}

func TestRun_CallbackURLCarriesRegistrationID(t *testing.T) {
	callbackURLs := make(chan string, 1)

	sched := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/eventSubscriptions":
			json.NewEncoder(w).Encode(map[string]interface{}{"callbackUrls": []string{}})
		case r.Method == http.MethodPost && r.URL.Path == "/v2/eventSubscriptions":
			select {
			case callbackURLs <- r.URL.Query().Get("callbackUrl"):
			default:
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/apps":
			json.NewEncoder(w).Encode(map[string]interface{}{"apps": []interface{}{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(sched.Close)

	cat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(cat.Close)

	ui := cli.NewMockUi()
	cmd := Command{UI: ui}
	exitCh := runAsync(&cmd, []string{
		"-registration-id", "the-uuid",
		"-scheduler-endpoint", sched.URL,
		"-catalog-endpoint", cat.URL,
		"-bind-addr", "127.0.0.1:17782",
		"-sync-period", "1s",
	})

	select {
	case callbackURL := <-callbackURLs:
		require.Equal(t, "http://127.0.0.1:17782/events?registration=the-uuid", callbackURL)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event callback registration")
	}

	cmd.sendSignal(syscall.SIGTERM)
	select {
	case code := <-exitCh:
		require.Equal(t, 0, code, ui.ErrorWriter.String())
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for command to exit")
	}
}

func TestRun_SignalShutsDownCleanly(t *testing.T) {
	cases := map[string]os.Signal{
		"SIGINT":  syscall.SIGINT,
		"SIGTERM": syscall.SIGTERM,
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			schedulerURL, catalogURL := fakeUpstreams(t)

			ui := cli.NewMockUi()
			cmd := Command{UI: ui}
			exitCh := runAsync(&cmd, []string{
				"-registration-id", "the-uuid",
				"-scheduler-endpoint", schedulerURL,
				"-catalog-endpoint", catalogURL,
				"-bind-addr", "127.0.0.1:17781",
				"-sync-period", "1s",
			})

			// give Run a moment to reach the signal-wait select
			time.Sleep(200 * time.Millisecond)
			cmd.sendSignal(sig)

			select {
			case code := <-exitCh:
				require.Equal(t, 0, code, ui.ErrorWriter.String())
			case <-time.After(3 * time.Second):
				t.Fatal("timeout waiting for command to exit")
			}
		})
	}
}
