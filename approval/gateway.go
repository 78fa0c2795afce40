// Package approval implements the host side of the tool permission round
// trip: a loopback HTTP gateway the hook process asks for decisions, a
// broker correlating those requests with host decisions, and the files
// that register the hook with the agent.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultAddr binds the gateway to an ephemeral loopback port.
const DefaultAddr = "127.0.0.1:0"

// maxBodyBytes bounds /approve bodies; Write inputs carry whole files.
const maxBodyBytes = 32 << 20

// ErrAlreadyStarted is returned by Start on a running gateway.
var ErrAlreadyStarted = errors.New("approval: gateway already started")

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithDetailBudget bounds the Detail string passed to the handler.
func WithDetailBudget(n int) Option {
	return func(g *Gateway) {
		g.budget = n
	}
}

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(g *Gateway) {
		g.addr = addr
	}
}

// Gateway is the loopback HTTP endpoint the hook process POSTs to.
type Gateway struct {
	handler Handler
	logger  *slog.Logger
	router  *chi.Mux
	srv     *http.Server
	cancel  context.CancelFunc
	addr    string
	url     string
	budget  int
	mu      sync.Mutex
}

// New creates a Gateway that asks handler for every decision.
func New(handler Handler, opts ...Option) *Gateway {
	g := &Gateway{
		handler: handler,
		logger:  slog.Default(),
		addr:    DefaultAddr,
		budget:  DefaultDetailBudget,
	}
	for _, opt := range opts {
		opt(g)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/approve", g.handleApprove)
	r.Get("/healthz", g.handleHealth)
	g.router = r
	return g
}

// Handler returns the gateway's routes, for mounting or httptest.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start binds the listener and serves in the background. Requests inherit
// a context derived from ctx that is cancelled by Stop.
func (g *Gateway) Start(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.srv != nil {
		return "", ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", g.addr, err)
	}

	baseCtx, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	g.srv = srv
	g.cancel = cancel
	g.url = "http://" + ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("approval gateway stopped", "error", err)
		}
	}()

	g.logger.Debug("approval gateway listening", "url", g.url)
	return g.url, nil
}

// URL returns the base URL of a started gateway, or "".
func (g *Gateway) URL() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.url
}

// Stop denies every pending approval and shuts the server down. Safe to
// call on a gateway that was never started.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv, cancel := g.srv, g.cancel
	g.srv, g.cancel, g.url = nil, nil, ""
	g.mu.Unlock()

	if c, ok := g.handler.(Canceller); ok {
		if n := c.CancelAll(); n > 0 {
			g.logger.Debug("denied pending approvals on shutdown", "count", n)
		}
	}
	if srv == nil {
		return nil
	}
	cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown approval gateway: %w", err)
	}
	return nil
}

func (g *Gateway) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty body")
		}
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "toolName is required")
		return
	}
	if req.ToolInput == nil {
		req.ToolInput = map[string]any{}
	}

	detail := FormatDetail(req.ToolName, req.ToolInput, g.budget)
	logger := g.logger.With("tool", req.ToolName, "request_id", middleware.GetReqID(r.Context()))
	logger.Debug("approval requested", "detail", detail)

	approved, err := g.handler.HandleApproval(r.Context(), &Request{
		ToolName:  req.ToolName,
		ToolInput: req.ToolInput,
		Detail:    detail,
	})
	if err != nil {
		logger.Warn("approval handler failed", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	logger.Debug("approval decided", "approved", approved)
	writeJSON(w, http.StatusOK, ApproveResponse{Approved: approved})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
