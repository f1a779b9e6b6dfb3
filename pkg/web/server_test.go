package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-meri/pkg/protocol"
	"github.com/teslashibe/go-meri/pkg/session"
	"github.com/teslashibe/go-meri/pkg/shell"
	"github.com/teslashibe/go-meri/pkg/tools"
)

type testEnv struct {
	server  *Server
	manager *session.Manager
	dialer  *session.MockDialer
	devices *session.MockDevices
	desktop *shell.Desktop
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	desktop := shell.NewDesktop(nil)
	dispatcher := tools.NewDispatcher(nil, tools.Builtins(desktop, desktop.AppNames())...)

	env := &testEnv{
		dialer:  session.NewMockDialer(),
		devices: session.NewMockDevices(),
		desktop: desktop,
	}
	env.manager = session.NewManager(session.DefaultConfig(), session.Deps{
		Dialer:  env.dialer,
		Devices: env.devices,
		Tools:   dispatcher,
	})
	t.Cleanup(func() { env.manager.Close() })

	env.server = NewServer(Options{
		Addr:    ":0",
		Manager: env.manager,
		Tools:   dispatcher,
		Desktop: desktop,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestStatus_Idle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)

	snap := decode[session.Snapshot](t, body)
	assert.Equal(t, session.StatusClosed, snap.Status)
	assert.Equal(t, "Meri is asleep.", snap.Label)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/session", "")
	require.Equal(t, http.StatusCreated, code, string(body))
	opened := decode[session.Snapshot](t, body)
	assert.Equal(t, session.StatusListening, opened.Status)
	assert.NotEmpty(t, opened.ID)

	code, body = env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, opened.ID, decode[session.Snapshot](t, body).ID)

	code, body = env.do(t, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, code)
	metrics := decode[MetricsResponse](t, body)
	assert.Equal(t, opened.ID, metrics.SessionID)
	assert.Equal(t, "---ms FIRST AUDIO | ---ms TOTAL", metrics.Latency)

	code, body = env.do(t, http.MethodDelete, "/api/session", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StatusClosed, decode[session.Snapshot](t, body).Status)
	assert.True(t, env.dialer.Last().Closed())

	code, body = env.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, session.ErrNoSession.Error(), decode[ErrorResponse](t, body).Error)

	code, _ = env.do(t, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestOpenSession_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*testEnv)
		wantCode int
		wantMsg  string
	}{
		{
			name:     "microphone",
			setup:    func(e *testEnv) { e.devices.FailSource(errors.New("permission denied")) },
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  "microphone unavailable",
		},
		{
			name:     "dial",
			setup:    func(e *testEnv) { e.dialer.Fail(errors.New("refused")) },
			wantCode: http.StatusBadGateway,
			wantMsg:  "connection interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)

			code, body := env.do(t, http.MethodPost, "/api/session", "")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMsg, decode[ErrorResponse](t, body).Error)

			_, body = env.do(t, http.MethodGet, "/api/status", "")
			snap := decode[session.Snapshot](t, body)
			assert.Equal(t, session.StatusError, snap.Status)
			assert.Equal(t, tt.wantMsg, snap.Error)
		})
	}
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, code)

	decls := decode[[]protocol.FunctionDeclaration](t, body)
	var names []string
	for _, d := range decls {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"openApp", "toggleTheme", "changeWallpaper"}, names)
}

func TestTriggerTool(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/tools/openApp", `{"args":{"appName":"term"}}`)
	require.Equal(t, http.StatusOK, code, string(body))
	res := decode[ToolResult](t, body)
	assert.Equal(t, "Opened Terminal", res.Output)
	assert.False(t, res.Failed)
	assert.True(t, strings.HasPrefix(res.CallID, "manual-"))

	code, body = env.do(t, http.MethodGet, "/api/desktop", "")
	require.Equal(t, http.StatusOK, code)
	state := decode[shell.State](t, body)
	require.NotNil(t, state.ActiveApp)
	assert.Equal(t, "Terminal", state.ActiveApp.Name)

	code, body = env.do(t, http.MethodPost, "/api/tools/toggleTheme", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Theme toggled", decode[ToolResult](t, body).Output)
	assert.Equal(t, shell.ThemeDark, env.desktop.State().Theme)
}

func TestTriggerTool_Unknown(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/tools/launchRocket", "")
	assert.Equal(t, http.StatusNotFound, code)

	res := decode[ToolResult](t, body)
	assert.Equal(t, "Could not find tool launchRocket", res.Output)
	assert.True(t, res.Failed)
}

func TestTriggerTool_BadBody(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/tools/openApp", `{"args":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", decode[ErrorResponse](t, body).Error)
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}
