package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// JSON-RPC 2.0 FRAMING
// ============================================================================

// JSONRPCVersion is the only protocol version accepted on the wire.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set, and ID always echoes the request id.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Domain error codes. Unknown task ids keep the legacy -32602 mapping;
// callers that need to tell them apart read the string code in Data.
const (
	CodeTaskNotFound      = CodeInvalidParams
	CodeTaskNotCancelable = -32002
	CodeTaskAlreadyDone   = -32003
	CodeBadMessageFormat  = -32004
)

// Domain error code strings carried in RPCError.Data.
const (
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeTaskNotCancelable = "TASK_NOT_CANCELABLE"
	ErrCodeTaskAlreadyDone   = "TASK_ALREADY_CANCELED"
	ErrCodeBadMessageFormat  = "UNSUPPORTED_MESSAGE_FORMAT"
)

// errorData is the Data payload attached to domain errors.
type errorData struct {
	Code string `json:"code"`
}

// NewRequest builds a request envelope with marshaled params.
func NewRequest(id any, method string, params any) (*Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewResponse builds a success response with a marshaled result.
func NewResponse(id any, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NewDomainErrorResponse builds an error response carrying a domain code.
func NewDomainErrorResponse(id any, code int, domainCode, message string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    errorData{Code: domainCode},
		},
	}
}

// DomainCode extracts the string domain code from an RPC error, if any.
func DomainCode(err error) string {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return ""
	}
	switch data := rpcErr.Data.(type) {
	case errorData:
		return data.Code
	case map[string]any:
		if code, ok := data["code"].(string); ok {
			return code
		}
	}
	return ""
}
