package httpbridge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma/mcp-gateway/internal/session"
)

func newTestBridge() (*Bridge, *session.Manager) {
	mgr := session.NewManager(session.ChildSpec{
		Command:      "ahma-mcp",
		ToolsDir:     "./tools",
		HandshakeTTL: time.Second,
	})
	return New(mgr), mgr
}

func doJSON(t *testing.T, handler http.Handler, method, path, sessionID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestBridge_Health(t *testing.T) {
	b, _ := newTestBridge()
	rr := doJSON(t, b.router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBridge_InitializeCreatesSession(t *testing.T) {
	b, mgr := newTestBridge()
	rr := doJSON(t, b.router, http.MethodPost, "/mcp", "", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	sid := rr.Header().Get(sessionHeader)
	require.NotEmpty(t, sid)
	_, ok := mgr.Get(sid)
	assert.True(t, ok)
}

func TestBridge_UnknownSessionIs404(t *testing.T) {
	b, _ := newTestBridge()
	rr := doJSON(t, b.router, http.MethodPost, "/mcp", "bogus-session", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "tools/call",
		"params": map[string]interface{}{"name": "echo"},
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var errResp rpcError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, errUnknownSessionCode, errResp.Error.Code)
}

func TestBridge_DeleteUnknownSessionIs404(t *testing.T) {
	b, _ := newTestBridge()
	rr := doJSON(t, b.router, http.MethodDelete, "/mcp", "bogus", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBridge_DeleteRemovesSession(t *testing.T) {
	b, mgr := newTestBridge()
	s := mgr.Create()
	rr := doJSON(t, b.router, http.MethodDelete, "/mcp", s.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, ok := mgr.Get(s.ID)
	assert.False(t, ok)
}

func TestBridge_HandshakeTimeoutGivesGatewayTimeout(t *testing.T) {
	mgr := session.NewManager(session.ChildSpec{Command: "ahma-mcp", ToolsDir: "./tools", HandshakeTTL: 5 * time.Millisecond})
	b := New(mgr)
	s := mgr.Create()
	time.Sleep(10 * time.Millisecond)

	rr := doJSON(t, b.router, http.MethodPost, "/mcp", s.ID, map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]interface{}{"name": "echo", "arguments": map[string]interface{}{}},
	})
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}
