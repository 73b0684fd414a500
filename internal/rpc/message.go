// Package rpc models the opaque JSON-RPC 2.0 envelope MCP peers exchange.
package rpc

import "encoding/json"

const Version = "2.0"

// Message is a JSON-RPC 2.0 message. It keeps the scalar fields the bridge
// needs to make routing decisions (id, method) while leaving params/result/
// error as raw JSON so the bridge never has to understand MCP method
// semantics.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Parse decodes a single line into a Message. Callers treat a decode error
// as a framing error: log and drop the line.
func Parse(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Encode serializes m without a trailing newline; callers append "\n"
// themselves so exactly one newline terminates each wire line.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// IsRequest reports whether m is a request (has a method and an id).
func (m Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether m is a notification (has a method, no id).
func (m Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether m carries a result or error and an id.
func (m Message) IsResponse() bool {
	return m.Method == "" && len(m.ID) > 0 && (m.Result != nil || m.Error != nil)
}

// IsInitialize reports whether m is an "initialize" request.
func (m Message) IsInitialize() bool {
	return m.Method == MethodInitialize
}

// IDEquals compares two raw JSON-RPC ids for equality by their encoded form.
// JSON-RPC ids are strings or numbers; comparing the raw bytes is sufficient
// because both sides of any comparison in this bridge originate from the
// same marshaling path.
func IDEquals(a, b json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	return string(a) == string(b)
}

const (
	MethodInitialize = "initialize"
	NotificationInit = "notifications/initialized"
)

// NewError builds a JSON-RPC error response message.
func NewError(id json.RawMessage, code int, message string) Message {
	return Message{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

const (
	CodeInvalidRequest = -32000
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)
