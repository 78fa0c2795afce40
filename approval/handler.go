package approval

import "context"

// Request is one tool invocation awaiting a decision.
type Request struct {
	ToolInput map[string]any
	ToolName  string
	// Detail is a bounded, human-readable rendering of ToolInput.
	Detail string
}

// Handler decides whether a tool may run. Returning an error denies the tool.
type Handler interface {
	HandleApproval(ctx context.Context, req *Request) (bool, error)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, req *Request) (bool, error)

// HandleApproval implements Handler.
func (f HandlerFunc) HandleApproval(ctx context.Context, req *Request) (bool, error) {
	return f(ctx, req)
}

// AllowAll returns a handler that approves every tool.
func AllowAll() Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (bool, error) {
		return true, nil
	})
}

// DenyAll returns a handler that denies every tool.
func DenyAll() Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (bool, error) {
		return false, nil
	})
}

// Canceller is implemented by handlers holding undecided requests. The
// gateway calls CancelAll on Stop.
type Canceller interface {
	CancelAll() int
}
