// Package httpbridge is the browser/IDE-facing transport (SPEC_FULL.md §4.9,
// HTTP Bridge C9): a fixed POST/GET/DELETE /mcp route set plus /health,
// dispatching each JSON-RPC envelope against the Session Manager's (C8)
// handshake state machine before ever reaching a tool call.
//
// Maps to: kadirpekel-hector's a2a/server.go (corsMiddleware/loggingMiddleware,
// respondJSON), re-routed through github.com/go-chi/chi/v5; the SSE
// handler's shape (keep-alive comments, broadcast channel, graceful
// shutdown) is grounded on theRebelliousNerd's internal/mcp/server.go
// StartSSE.
package httpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ahma/mcp-gateway/internal/session"
)

const (
	sessionHeader  = "Mcp-Session-Id"
	shutdownBudget = 10 * time.Second
)

// Bridge serves the gateway's HTTP-mode transport over a *session.Manager.
type Bridge struct {
	mgr    *session.Manager
	router chi.Router
}

// New builds a Bridge routed against mgr.
func New(mgr *session.Manager) *Bridge {
	b := &Bridge{mgr: mgr}
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware)
	r.Get("/health", b.handleHealth)
	r.Post("/mcp", b.handlePost)
	r.Get("/mcp", b.handleSSE)
	r.Delete("/mcp", b.handleDelete)
	b.router = r
	return b
}

// Listen binds a TCP listener on port (0 = kernel-assigned) and reports the
// actual bound port, for the CLI's AHMA_BOUND_PORT stderr announcement.
func Listen(port int) (net.Listener, int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, 0, err
	}
	return ln, ln.Addr().(*net.TCPAddr).Port, nil
}

// Serve runs the HTTP server over ln until ctx is cancelled, then drains
// active requests for up to shutdownBudget before forcing close — mirroring
// theRebelliousNerd's StartSSE graceful-shutdown sequencing.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: b.router}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("httpbridge: shutting down gracefully")
		b.mgr.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": b.mgr.Count(),
	})
}

// handlePost dispatches one JSON-RPC envelope. A request with no
// Mcp-Session-Id header and method "initialize" creates a new session; every
// other request must carry a known, non-terminated session id.
func (b *Bridge) handlePost(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		respondRPCError(w, http.StatusBadRequest, nil, -32700, "parse error: "+err.Error())
		return
	}

	sessionID := r.Header.Get(sessionHeader)

	if sessionID == "" {
		if env.Method != "initialize" {
			respondRPCError(w, http.StatusNotFound, env.ID, errUnknownSessionCode, ErrUnknownSession.Error())
			return
		}
		s := b.mgr.Create()
		w.Header().Set(sessionHeader, s.ID)
		respondJSON(w, http.StatusOK, rpcResult{JSONRPC: "2.0", ID: env.ID, Result: map[string]interface{}{
			"protocolVersion": "2025-03-26",
			"serverInfo":      map[string]string{"name": "ahma-mcp-gateway", "version": "0.1.0"},
		}})
		return
	}

	s, ok := b.mgr.Get(sessionID)
	if !ok {
		respondRPCError(w, http.StatusNotFound, env.ID, errUnknownSessionCode, ErrUnknownSession.Error())
		return
	}

	b.dispatch(r.Context(), w, s, env)
}

func (b *Bridge) dispatch(ctx context.Context, w http.ResponseWriter, s *session.Session, env envelope) {
	switch {
	case env.Method == "notifications/initialized":
		_ = s.OnInitialized()
		w.WriteHeader(http.StatusAccepted)

	case env.Method == "notifications/roots/list_changed":
		var params struct {
			Roots []rootEntry `json:"roots"`
		}
		_ = json.Unmarshal(env.Params, &params)
		if len(params.Roots) > 0 {
			if err := s.OnRootsListChanged(params.Roots[0].URI); err != nil {
				mapAndRespond(w, env.ID, err)
				return
			}
		}
		w.WriteHeader(http.StatusAccepted)

	case env.Method == "" && env.Result != nil:
		// A roots/list response: a JSON-RPC *response*, not a request.
		var result struct {
			Roots []rootEntry `json:"roots"`
		}
		if err := json.Unmarshal(env.Result, &result); err != nil {
			respondRPCError(w, http.StatusBadRequest, env.ID, -32700, "parse error: "+err.Error())
			return
		}
		uris := make([]string, len(result.Roots))
		for i, root := range result.Roots {
			uris[i] = root.URI
		}
		if err := s.OnRootsListResponse(ctx, uris); err != nil {
			mapAndRespond(w, env.ID, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)

	case env.Method == "tools/list":
		result, err := s.ListTools(ctx)
		if err != nil {
			mapAndRespond(w, env.ID, err)
			return
		}
		respondJSON(w, http.StatusOK, rpcResult{JSONRPC: "2.0", ID: env.ID, Result: result})

	case env.Method == "tools/call":
		var params struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if err := json.Unmarshal(env.Params, &params); err != nil {
			respondRPCError(w, http.StatusBadRequest, env.ID, -32602, "invalid params: "+err.Error())
			return
		}
		result, err := s.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			mapAndRespond(w, env.ID, err)
			return
		}
		respondJSON(w, http.StatusOK, rpcResult{JSONRPC: "2.0", ID: env.ID, Result: result})

	default:
		respondRPCError(w, http.StatusBadRequest, env.ID, -32601, "method not found: "+env.Method)
	}
}

// handleSSE opens the session's broadcast subscription: an initial `endpoint`
// event announcing the POST URL, then streamed JSON-RPC notifications with
// periodic keep-alive comments, per SPEC_FULL.md §4.9.
func (b *Bridge) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	s, ok := b.mgr.Get(sessionID)
	if !ok {
		http.Error(w, ErrUnknownSession.Error(), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsub, err := s.OnSSESubscribe(r.Context())
	if err != nil {
		mapAndRespond(w, nil, err)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (b *Bridge) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" || !b.mgr.Remove(sessionID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+sessionHeader+", Accept")
		w.Header().Set("Access-Control-Expose-Headers", sessionHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("httpbridge: %s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
