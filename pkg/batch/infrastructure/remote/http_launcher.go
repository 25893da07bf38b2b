// Package remote dispatches external processes over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"

	port "github.com/tigerroll/suicsync/pkg/batch/core/application/port"
	cfg "github.com/tigerroll/suicsync/pkg/batch/core/config"
	exception "github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "launcher"

// maxErrorBody bounds how much of a rejected response is kept in the error.
const maxErrorBody = 512

// HTTPLauncherParams holds the dependencies injected via DI.
type HTTPLauncherParams struct {
	fx.In
	Config *cfg.Config
}

// HTTPLauncher is an implementation of port.Launcher that POSTs the launch request as JSON.
type HTTPLauncher struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPLauncher creates a launcher from the execution configuration.
func NewHTTPLauncher(p HTTPLauncherParams) port.Launcher {
	execCfg := p.Config.App.Execution
	return NewHTTPLauncherWithClient(execCfg.LauncherEndpoint, http.DefaultClient, execCfg.DispatchTimeoutDuration())
}

// NewHTTPLauncherWithClient creates a launcher posting to endpoint with client.
func NewHTTPLauncherWithClient(endpoint string, client *http.Client, timeout time.Duration) *HTTPLauncher {
	return &HTTPLauncher{endpoint: endpoint, client: client, timeout: timeout}
}

// Dispatch sends req and succeeds on any 2xx response.
func (l *HTTPLauncher) Dispatch(ctx context.Context, req port.LaunchRequest) error {
	if l.endpoint == "" {
		return exception.Validation(moduleName, "launcher endpoint is not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return exception.NewBatchError(moduleName, exception.ErrDispatch, "failed to encode launch request", err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return exception.NewBatchError(moduleName, exception.ErrDispatch, "failed to build launch request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Infof("HTTPLauncher: dispatching %s execution '%s' of run %s to %s.", req.Type, req.ExecutionID, req.RunID, l.endpoint)
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrDispatch, "launch of execution '%s' failed", req.ExecutionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return exception.NewBatchError(moduleName, exception.ErrDispatch,
			fmt.Sprintf("launcher rejected execution '%s' with status %d", req.ExecutionID, resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(snippet))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	logger.Debugf("HTTPLauncher: execution '%s' accepted (status %d).", req.ExecutionID, resp.StatusCode)
	return nil
}

var _ port.Launcher = (*HTTPLauncher)(nil)
