package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postApprove(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/approve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGateway_Approve(t *testing.T) {
	var got *Request
	g := New(HandlerFunc(func(ctx context.Context, req *Request) (bool, error) {
		got = req
		return req.ToolName == "Bash", nil
	}))

	rec := postApprove(t, g.Handler(), `{"toolName":"Bash","toolInput":{"command":"ls -la"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ApproveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Approved)

	require.NotNil(t, got)
	assert.Equal(t, "Bash", got.ToolName)
	assert.Equal(t, "ls -la", got.ToolInput["command"])
	assert.Equal(t, "$ ls -la", got.Detail)

	rec = postApprove(t, g.Handler(), `{"toolName":"Write","toolInput":{"file_path":"a"}}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Approved)
}

func TestGateway_BadRequests(t *testing.T) {
	g := New(AllowAll())

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "malformed json", body: `{"toolName":`},
		{name: "missing tool name", body: `{"toolInput":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postApprove(t, g.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, ErrCodeInvalidRequest, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestGateway_HandlerError(t *testing.T) {
	g := New(HandlerFunc(func(ctx context.Context, req *Request) (bool, error) {
		return true, errors.New("host went away")
	}))

	rec := postApprove(t, g.Handler(), `{"toolName":"Bash","toolInput":{}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestGateway_HandlerPanicRecovered(t *testing.T) {
	g := New(HandlerFunc(func(ctx context.Context, req *Request) (bool, error) {
		panic("boom")
	}))

	rec := postApprove(t, g.Handler(), `{"toolName":"Bash"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGateway_Health(t *testing.T) {
	g := New(DenyAll())
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGateway_StartServesOnLoopback(t *testing.T) {
	g := New(AllowAll())
	url, err := g.Start(context.Background())
	require.NoError(t, err)
	defer g.Stop(context.Background())

	assert.True(t, strings.HasPrefix(url, "http://127.0.0.1:"), url)
	assert.NotEqual(t, "http://127.0.0.1:0", url)
	assert.Equal(t, url, g.URL())

	_, err = g.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	resp, err := http.Post(url+"/approve", "application/json", bytes.NewBufferString(`{"toolName":"Write","toolInput":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ApproveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Approved)
}

func TestGateway_StopDeniesPending(t *testing.T) {
	notified := make(chan PendingApproval, 1)
	broker := NewBroker(func(p PendingApproval) { notified <- p })
	g := New(broker)
	url, err := g.Start(context.Background())
	require.NoError(t, err)

	type result struct {
		err  error
		resp ApproveResponse
	}
	done := make(chan result, 1)
	go func() {
		var r result
		resp, err := http.Post(url+"/approve", "application/json", strings.NewReader(`{"toolName":"Bash","toolInput":{"command":"make"}}`))
		if err != nil {
			r.err = err
			done <- r
			return
		}
		defer resp.Body.Close()
		r.err = json.NewDecoder(resp.Body).Decode(&r.resp)
		done <- r
	}()

	p := <-notified
	assert.Equal(t, "$ make", p.Detail)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, g.Stop(ctx))

	r := <-done
	require.NoError(t, r.err)
	assert.False(t, r.resp.Approved)
	assert.Empty(t, g.URL())

	// A second Stop is a no-op.
	assert.NoError(t, g.Stop(ctx))
}
