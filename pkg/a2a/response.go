package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
)

const logPrefix = "a2a:response"

// ErrMalformedResponse marks a reply that is neither a success nor an error wrapper.
var ErrMalformedResponse = errors.New("malformed response")

// MalformedResponseError describes why a reply could not be classified.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s - %s: %s", logPrefix, ErrMalformedResponse, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// Response is the tagged root of a message/send reply: *SuccessResponse or *ErrorResponse.
type Response interface {
	isResponse()
}

// Result is the payload of a SuccessResponse: *Task, *Message or *UnknownResult.
type Result interface {
	isResult()
}

// SuccessResponse wraps a result.
type SuccessResponse struct {
	ID     json.RawMessage
	Result Result
}

// ErrorResponse wraps a JSON-RPC error.
type ErrorResponse struct {
	ID    json.RawMessage
	Error *JSONRPCError
}

// JSONRPCError is the error member of a JSON-RPC reply.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// UnknownResult keeps a result payload that is neither a Task nor a Message.
type UnknownResult struct {
	Raw json.RawMessage
}

func (*SuccessResponse) isResponse() {}
func (*ErrorResponse) isResponse()   {}

func (*Task) isResult()          {}
func (*Message) isResult()       {}
func (*UnknownResult) isResult() {}

// DecodeResponse classifies a raw message/send reply body.
func DecodeResponse(data []byte) (Response, error) {
	var envelope struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &MalformedResponseError{Reason: err.Error()}
	}

	if envelope.Error != nil {
		return &ErrorResponse{ID: envelope.ID, Error: envelope.Error}, nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil, &MalformedResponseError{Reason: "neither result nor error present"}
	}
	return &SuccessResponse{ID: envelope.ID, Result: decodeResult(envelope.Result)}, nil
}

// decodeResult recognizes a Task by kind "task", or, for agents that omit kind,
// by the presence of both an id and a status state.
func decodeResult(raw json.RawMessage) Result {
	var probe struct {
		Kind   string `json:"kind"`
		ID     string `json:"id"`
		Status *struct {
			State string `json:"state"`
		} `json:"status"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return &UnknownResult{Raw: raw}
	}
	hasTaskShape := probe.ID != "" && probe.Status != nil && probe.Status.State != ""

	switch probe.Kind {
	case KindTask:
		if !hasTaskShape {
			return &UnknownResult{Raw: raw}
		}
		return decodeTask(raw)
	case KindMessage:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return &UnknownResult{Raw: raw}
		}
		return &msg
	case "":
		if hasTaskShape {
			return decodeTask(raw)
		}
	}
	return &UnknownResult{Raw: raw}
}

func decodeTask(raw json.RawMessage) Result {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return &UnknownResult{Raw: raw}
	}
	return &task
}
