package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/agentsession/approval"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func runHook(t *testing.T, stdin string, cfg Config) (int, Output) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quiet
	}
	var stdout bytes.Buffer
	code := Run(context.Background(), strings.NewReader(stdin), &stdout, cfg)

	var out Output
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	}
	return code, out
}

func TestRun_SafeToolBypassesGateway(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	code, out := runHook(t, `{"tool_name":"Read","tool_input":{"file_path":"/etc/hosts"}}`, Config{GatewayURL: srv.URL})

	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, EventPreToolUse, out.HookSpecificOutput.HookEventName)
	assert.Equal(t, DecisionAllow, out.HookSpecificOutput.PermissionDecision)
	assert.Equal(t, int32(0), hits.Load(), "gateway must not be contacted")
}

func TestRun_SafeToolWithoutGateway(t *testing.T) {
	for _, tool := range DefaultSafeTools {
		code, out := runHook(t, `{"tool_name":"`+tool+`"}`, Config{})
		assert.Equal(t, ExitDecided, code, tool)
		assert.Equal(t, DecisionAllow, out.HookSpecificOutput.PermissionDecision, tool)
	}
}

func TestRun_TimeoutDenies(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	code, out := runHook(t, `{"tool_name":"Bash","tool_input":{"command":"make"}}`,
		Config{GatewayURL: srv.URL, Timeout: 50 * time.Millisecond})

	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionDeny, out.HookSpecificOutput.PermissionDecision)
	assert.Contains(t, out.HookSpecificOutput.PermissionDecisionReason, "no approval decision")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_RoundTripThroughGateway(t *testing.T) {
	var got *approval.Request
	gw := approval.New(approval.HandlerFunc(func(ctx context.Context, req *approval.Request) (bool, error) {
		got = req
		return req.ToolInput["command"] == "go test ./...", nil
	}), approval.WithLogger(quiet))
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	code, out := runHook(t, `{"tool_name":"Bash","tool_input":{"command":"go test ./..."}}`, Config{GatewayURL: srv.URL + "/"})
	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionAllow, out.HookSpecificOutput.PermissionDecision)
	require.NotNil(t, got)
	assert.Equal(t, "Bash", got.ToolName)
	assert.Equal(t, "$ go test ./...", got.Detail)

	code, out = runHook(t, `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"}}`, Config{GatewayURL: srv.URL})
	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionDeny, out.HookSpecificOutput.PermissionDecision)
	assert.Equal(t, "denied by user", out.HookSpecificOutput.PermissionDecisionReason)
}

func TestRun_GatewayErrorsDeny(t *testing.T) {
	tests := []struct {
		handler http.HandlerFunc
		name    string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"boom"}}`))
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			code, out := runHook(t, `{"tool_name":"Write","tool_input":{"file_path":"a"}}`, Config{GatewayURL: srv.URL})
			assert.Equal(t, ExitDecided, code)
			assert.Equal(t, DecisionDeny, out.HookSpecificOutput.PermissionDecision)
			assert.Equal(t, "approval gateway unavailable", out.HookSpecificOutput.PermissionDecisionReason)
		})
	}
}

func TestRun_UnreachableGatewayDenies(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	code, out := runHook(t, `{"tool_name":"Edit","tool_input":{}}`, Config{GatewayURL: url})
	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionDeny, out.HookSpecificOutput.PermissionDecision)
}

func TestRun_InternalFailures(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		cfg   Config
	}{
		{name: "malformed input", stdin: `{"tool_name":`, cfg: Config{GatewayURL: "http://127.0.0.1:1"}},
		{name: "empty input", stdin: "", cfg: Config{GatewayURL: "http://127.0.0.1:1"}},
		{name: "missing tool name", stdin: `{"tool_input":{}}`, cfg: Config{GatewayURL: "http://127.0.0.1:1"}},
		{name: "no gateway configured", stdin: `{"tool_name":"Bash"}`, cfg: Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runHook(t, tt.stdin, tt.cfg)
			assert.Equal(t, ExitFailure, code)
			assert.Empty(t, out.HookSpecificOutput.PermissionDecision, "nothing written on failure")
		})
	}
}

func TestRun_CustomSafeTools(t *testing.T) {
	code, out := runHook(t, `{"tool_name":"WebSearch"}`, Config{SafeTools: []string{"WebSearch"}})
	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionAllow, out.HookSpecificOutput.PermissionDecision)

	code, out = runHook(t, `{"tool_name":"mcp__docs__search"}`, Config{SafeTools: []string{"mcp__docs__*"}})
	assert.Equal(t, ExitDecided, code)
	assert.Equal(t, DecisionAllow, out.HookSpecificOutput.PermissionDecision)

	// An explicit empty list disables the bypass.
	code, _ = runHook(t, `{"tool_name":"Read"}`, Config{SafeTools: []string{}})
	assert.Equal(t, ExitFailure, code)
}
