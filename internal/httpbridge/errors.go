package httpbridge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahma/mcp-gateway/internal/session"
)

// ErrUnknownSession is the bridge-local form of session.ErrUnknownSession,
// re-exported so callers never need to import internal/session just to
// compare against it.
var ErrUnknownSession = session.ErrUnknownSession

const (
	errSandboxInitCode    = -32001
	errHandshakeTimeoutCode = -32002
	errScopeViolationCode = -32003
	errUnknownSessionCode = -32004
)

// mapAndRespond translates a session-layer sentinel error into the JSON-RPC
// code + HTTP status pair from SPEC_FULL.md §6/§7 and writes the response.
func mapAndRespond(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, session.ErrSandboxInitializing):
		respondRPCError(w, http.StatusConflict, id, errSandboxInitCode, err.Error())
	case errors.Is(err, session.ErrHandshakeTimeout):
		respondRPCError(w, http.StatusGatewayTimeout, id, errHandshakeTimeoutCode, err.Error())
	case errors.Is(err, session.ErrScopeViolation):
		respondRPCError(w, http.StatusForbidden, id, errScopeViolationCode, err.Error())
	case errors.Is(err, session.ErrUnknownSession):
		respondRPCError(w, http.StatusNotFound, id, errUnknownSessionCode, err.Error())
	default:
		respondRPCError(w, http.StatusInternalServerError, id, -32603, err.Error())
	}
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

type rpcResult struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result"`
}

type rpcError struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Error   rpcErrBody `json:"error"`
}

type rpcErrBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rootEntry struct {
	URI string `json:"uri"`
}

func respondRPCError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	respondJSON(w, status, rpcError{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErrBody{Code: code, Message: message},
	})
}
