package approval

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrUnknownRequest is returned by Resolve for ids that are not pending.
var ErrUnknownRequest = errors.New("approval: unknown or already resolved request")

// ErrDecisionTimeout is returned when the broker's own decision window
// elapses.
var ErrDecisionTimeout = errors.New("approval: no decision in time")

// PendingApproval is a request waiting for the host's decision.
type PendingApproval struct {
	ToolInput map[string]any
	RequestID string
	ToolName  string
	Detail    string
	Created   time.Time
}

type pendingEntry struct {
	decision chan bool
	info     PendingApproval
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithDecisionTimeout denies requests the host has not decided within d.
// Zero (the default) waits until the request context ends.
func WithDecisionTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithResolved registers a callback invoked once per request when it leaves
// the pending set, whether decided, cancelled, or abandoned.
func WithResolved(fn func(requestID string, approved bool)) BrokerOption {
	return func(b *Broker) {
		b.resolved = fn
	}
}

// Broker is a Handler that parks each request under a generated id until
// the host calls Resolve. It is safe for concurrent use: requests arrive on
// HTTP handler goroutines while decisions come from the host.
type Broker struct {
	notify   func(PendingApproval)
	resolved func(string, bool)
	pending  map[string]*pendingEntry
	timeout  time.Duration
	mu       sync.Mutex
}

// NewBroker creates a Broker. notify is called, without locks held, for
// every new pending request.
func NewBroker(notify func(PendingApproval), opts ...BrokerOption) *Broker {
	b := &Broker{
		notify:  notify,
		pending: make(map[string]*pendingEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleApproval implements Handler. It blocks until Resolve, CancelAll, the
// decision timeout, or ctx ends; the last three deny.
func (b *Broker) HandleApproval(ctx context.Context, req *Request) (bool, error) {
	entry := &pendingEntry{
		decision: make(chan bool, 1),
		info: PendingApproval{
			RequestID: ulid.Make().String(),
			ToolName:  req.ToolName,
			ToolInput: req.ToolInput,
			Detail:    req.Detail,
			Created:   time.Now(),
		},
	}
	id := entry.info.RequestID

	b.mu.Lock()
	b.pending[id] = entry
	b.mu.Unlock()

	if b.notify != nil {
		b.notify(entry.info)
	}

	var timeout <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case approved := <-entry.decision:
		return approved, nil
	case <-ctx.Done():
		b.abandon(id)
		return false, ctx.Err()
	case <-timeout:
		b.abandon(id)
		return false, ErrDecisionTimeout
	}
}

// abandon removes id if it is still pending and reports it denied.
func (b *Broker) abandon(id string) {
	b.mu.Lock()
	_, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()
	if ok && b.resolved != nil {
		b.resolved(id, false)
	}
}

// Resolve delivers the host's decision for id.
func (b *Broker) Resolve(id string, approved bool) error {
	b.mu.Lock()
	entry, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if !ok {
		return ErrUnknownRequest
	}
	entry.decision <- approved
	if b.resolved != nil {
		b.resolved(id, approved)
	}
	return nil
}

// CancelAll denies every pending request and returns how many there were.
func (b *Broker) CancelAll() int {
	b.mu.Lock()
	entries := b.pending
	b.pending = make(map[string]*pendingEntry)
	b.mu.Unlock()

	for id, entry := range entries {
		entry.decision <- false
		if b.resolved != nil {
			b.resolved(id, false)
		}
	}
	return len(entries)
}

// Pending returns the undecided requests, oldest first.
func (b *Broker) Pending() []PendingApproval {
	b.mu.Lock()
	out := make([]PendingApproval, 0, len(b.pending))
	for _, entry := range b.pending {
		out = append(out, entry.info)
	}
	b.mu.Unlock()

	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}

var _ Handler = (*Broker)(nil)
var _ Canceller = (*Broker)(nil)
