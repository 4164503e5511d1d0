package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"matrixchain/crypto"
	"matrixchain/native/matrix"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRejected       = -32010
	codeRateLimited    = -32020
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RejectionData carries the stable engine error code of a rejected call.
type RejectionData struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func invalidParams(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

// engineError maps an engine or node failure to a JSON-RPC error. Taxonomy
// errors become rejections; anything else is a server error.
func engineError(err error) *RPCError {
	code := matrix.Code(err)
	if code == "internal" {
		return &RPCError{Code: codeServerError, Message: "internal error", Data: err.Error()}
	}
	return &RPCError{
		Code:    codeRejected,
		Message: "transaction rejected",
		Data:    RejectionData{Code: code, Error: err.Error()},
	}
}

func statusFor(rpcErr *RPCError) int {
	if rpcErr == nil {
		return http.StatusOK
	}
	switch rpcErr.Code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, id interface{}, rpcErr *RPCError) {
	w.WriteHeader(statusFor(rpcErr))
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// decodeParams unmarshals the single parameter object. Methods whose fields
// are all optional accept an empty params list when optional is set.
func decodeParams(params []json.RawMessage, out interface{}, optional bool) *RPCError {
	if len(params) == 0 && optional {
		return nil
	}
	if len(params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return invalidParams("invalid parameter object", err)
	}
	return nil
}

func parseAddress(field, raw string) ([20]byte, *RPCError) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, invalidParams(field+" is required", nil)
	}
	addr, err := crypto.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, invalidParams("invalid "+field+" address", err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams(field+" is required", nil)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(fmt.Sprintf("invalid %s %q", field, raw), nil)
	}
	if amount.Sign() < 0 {
		return nil, invalidParams(field+" must not be negative", nil)
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.FromRaw(addr).String()
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

var errNodeUnavailable = errors.New("rpc: node unavailable")
