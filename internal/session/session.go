// Package session implements the HTTP Bridge's per-client handshake state
// machine and subprocess lifecycle (SPEC_FULL.md §4.8, Session Manager C8).
//
// Maps to: internal/mcp/store.go's McpStore per-session map pattern,
// generalized from "one McpConnectionManager per worker session" into the
// handshake-gated, subprocess-owning Session this gateway's HTTP mode needs;
// internal/execsession/session.go's process-lifecycle bookkeeping (started
// time, background exit-wait goroutine) for the spawned child.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one point in the handshake DAG described in SPEC_FULL.md §4.8.
type State string

const (
	AwaitingBoth    State = "AwaitingBoth"
	AwaitingSseOnly State = "AwaitingSseOnly"
	AwaitingMcpOnly State = "AwaitingMcpOnly"
	RootsRequested  State = "RootsRequested"
	Complete        State = "Complete"
	Terminated      State = "Terminated"
)

// ChildSpec configures the per-session stdio child every Session spawns once
// its workspace root is known.
type ChildSpec struct {
	Command      string // os.Args[0]-resolved path to this same binary
	ToolsDir     string
	ForceSync    bool
	NoSandbox    bool
	Debug        bool
	HandshakeTTL time.Duration
}

// queuedCall is one tools/call received before Complete, buffered for replay
// once the handshake finishes or the subprocess is restarted.
type queuedCall struct {
	toolName string
	args     map[string]interface{}
	resultCh chan callOutcome
}

type callOutcome struct {
	result interface{}
	err    error
}

// Session is one logical client binding: an HTTP/SSE connection paired with
// exactly one sandboxed stdio child process.
//
// Maps to: SPEC_FULL.md §3 "Session".
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	state       State
	scopeRoot   string
	deadline    time.Time
	queued      []*queuedCall
	subscribers []chan []byte // SSE broadcast subscribers

	child *childProcess
	spec  ChildSpec
}

func newSession(spec ChildSpec) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		state:     AwaitingBoth,
		deadline:  now.Add(spec.HandshakeTTL),
		spec:      spec,
	}
}

// State reports the session's current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnSSESubscribe advances AwaitingBoth->AwaitingSseOnly or
// AwaitingMcpOnly->RootsRequested, issuing roots/list in the latter case.
// Returns a channel the caller should stream as SSE events, and an unsubscribe func.
func (s *Session) OnSSESubscribe(ctx context.Context) (<-chan []byte, func(), error) {
	s.mu.Lock()
	ch := make(chan []byte, 16)
	s.subscribers = append(s.subscribers, ch)
	var needRoots bool
	switch s.state {
	case AwaitingBoth:
		s.state = AwaitingSseOnly
	case AwaitingMcpOnly:
		s.state = RootsRequested
		needRoots = true
	case Terminated:
		s.mu.Unlock()
		return nil, nil, ErrUnknownSession
	}
	s.mu.Unlock()

	if needRoots {
		s.sendRootsListRequest(ch)
	}

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, c := range s.subscribers {
			if c == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
	}
	return ch, unsub, nil
}

// OnInitialized advances AwaitingBoth->AwaitingMcpOnly or
// AwaitingSseOnly->RootsRequested, issuing roots/list in the latter case.
func (s *Session) OnInitialized() error {
	s.mu.Lock()
	var needRoots bool
	var target chan []byte
	switch s.state {
	case AwaitingBoth:
		s.state = AwaitingMcpOnly
	case AwaitingSseOnly:
		s.state = RootsRequested
		needRoots = true
		if len(s.subscribers) > 0 {
			target = s.subscribers[0]
		}
	case Terminated:
		s.mu.Unlock()
		return ErrUnknownSession
	}
	s.mu.Unlock()

	if needRoots && target != nil {
		s.sendRootsListRequest(target)
	}
	return nil
}

// sendRootsListRequest writes a roots/list JSON-RPC request onto the
// session's SSE stream; the browser's client-side MCP SDK answers it with a
// POST carrying the response, routed to OnRootsListResponse.
func (s *Session) sendRootsListRequest(ch chan []byte) {
	const req = `{"jsonrpc":"2.0","id":"roots-1","method":"roots/list"}` + "\n"
	select {
	case ch <- []byte(req):
	default:
		log.Printf("session %s: SSE subscriber channel full, dropping roots/list request", s.ID)
	}
}

// OnRootsListResponse handles the handshake's terminal step: locks the
// sandbox scope from the first advertised root, spawns the stdio child, and
// drains any tools/call buffered while the handshake was in progress.
//
// Maps to: SPEC_FULL.md §4.8 RootsRequested -> Complete, and the
// scope-immutability invariant (a second response with a different root is
// rejected rather than silently accepted).
func (s *Session) OnRootsListResponse(ctx context.Context, roots []string) error {
	if len(roots) == 0 {
		return ErrNoRoots
	}
	root := roots[0]

	s.mu.Lock()
	if s.state == Terminated {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	if s.scopeRoot != "" {
		mismatch := root != s.scopeRoot
		if mismatch {
			s.terminateLocked(ErrScopeViolation)
		}
		s.mu.Unlock()
		return ErrScopeViolation
	}
	if s.state != RootsRequested {
		s.mu.Unlock()
		return ErrSandboxInitializing
	}
	s.scopeRoot = root
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	child, err := spawnChildFunc(ctx, s.spec, root)
	if err != nil {
		s.Terminate(err)
		return err
	}

	s.mu.Lock()
	s.child = child
	s.state = Complete
	s.mu.Unlock()

	for _, qc := range queued {
		res, err := child.callTool(ctx, qc.toolName, qc.args)
		qc.resultCh <- callOutcome{result: res, err: err}
	}
	return nil
}

// OnRootsListChanged enforces scope immutability: any proposed root other
// than the one already locked terminates the session outright.
func (s *Session) OnRootsListChanged(newRoot string) error {
	s.mu.Lock()
	locked := s.scopeRoot
	s.mu.Unlock()
	if locked != "" && newRoot != locked {
		s.Terminate(ErrScopeViolation)
		return ErrScopeViolation
	}
	return nil
}

// CallTool forwards name/args to the session's stdio child once Complete;
// before that it enforces the gating and handshake-timeout rules from
// SPEC_FULL.md §4.8.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	s.mu.Lock()
	switch s.state {
	case Terminated:
		s.mu.Unlock()
		return nil, ErrUnknownSession
	case Complete:
		child := s.child
		s.mu.Unlock()
		return child.callToolWithRestart(ctx, s, name, args)
	}
	if time.Now().After(s.deadline) {
		s.mu.Unlock()
		s.Terminate(ErrHandshakeTimeout)
		return nil, ErrHandshakeTimeout
	}
	qc := &queuedCall{toolName: name, args: args, resultCh: make(chan callOutcome, 1)}
	s.queued = append(s.queued, qc)
	s.mu.Unlock()

	select {
	case out := <-qc.resultCh:
		return out.result, out.err
	case <-time.After(time.Until(s.deadline)):
		s.Terminate(ErrHandshakeTimeout)
		return nil, ErrHandshakeTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListTools forwards to the child once Complete; returns ErrSandboxInitializing otherwise.
func (s *Session) ListTools(ctx context.Context) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Terminated:
		return nil, ErrUnknownSession
	case Complete:
		return s.child.listTools(ctx)
	default:
		return nil, ErrSandboxInitializing
	}
}

// Broadcast fans a notification out to every SSE subscriber.
func (s *Session) Broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
			log.Printf("session %s: dropping notification, subscriber channel full", s.ID)
		}
	}
}

// Terminate cancels all owned operations (via the child subprocess teardown)
// and moves the session to Terminated, per the error taxonomy's
// HandshakeTimeout/SandboxViolation propagation policy.
func (s *Session) Terminate(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(reason)
}

func (s *Session) terminateLocked(reason error) {
	if s.state == Terminated {
		return
	}
	log.Printf("session %s: terminating: %v", s.ID, reason)
	s.state = Terminated
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	for _, qc := range s.queued {
		qc.resultCh <- callOutcome{err: reason}
	}
	s.queued = nil
	if s.child != nil {
		s.child.close()
	}
}
