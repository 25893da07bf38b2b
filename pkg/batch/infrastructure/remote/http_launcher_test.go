package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/suicsync/pkg/batch/core/application/port"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/remote"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

var request = port.LaunchRequest{ExecutionID: "exec-1", RunID: "run-1", Type: "suic_load", CallbackURL: "http://cb/notifications/executions"}

func TestDispatch_PostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := remote.NewHTTPLauncherWithClient(srv.URL, srv.Client(), time.Second).Dispatch(context.Background(), request)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"executionId": "exec-1", "runId": "run-1", "type": "suic_load", "callbackUrl": "http://cb/notifications/executions",
	}, got)
}

func TestDispatch_Non2xxIsDispatchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "robot busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := remote.NewHTTPLauncherWithClient(srv.URL, srv.Client(), time.Second).Dispatch(context.Background(), request)

	assert.ErrorIs(t, err, exception.ErrDispatch)
	assert.Contains(t, err.Error(), "503")
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := remote.NewHTTPLauncherWithClient(srv.URL, srv.Client(), 20*time.Millisecond).Dispatch(context.Background(), request)

	assert.ErrorIs(t, err, exception.ErrDispatch)
}

func TestDispatch_RequiresEndpoint(t *testing.T) {
	err := remote.NewHTTPLauncherWithClient("", http.DefaultClient, time.Second).Dispatch(context.Background(), request)

	assert.ErrorIs(t, err, exception.ErrValidation)
}
