// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import "fmt"

// Error codes used in JSON-RPC error responses.
const (
	ErrorCodeTaskNotFound   = -32001
	ErrorCodeJSONParse      = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// ProtocolError is an error that maps onto a JSON-RPC error code.
type ProtocolError interface {
	error
	Code() int
}

// TaskNotFoundError indicates the requested task id is unknown.
type TaskNotFoundError struct {
	TaskID string
}

func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Code returns the JSON-RPC error code.
func (e TaskNotFoundError) Code() int { return ErrorCodeTaskNotFound }

// InvalidParamsError indicates malformed request parameters.
type InvalidParamsError struct {
	Msg string
}

func (e InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params: %s", e.Msg)
}

// Code returns the JSON-RPC error code.
func (e InvalidParamsError) Code() int { return ErrorCodeInvalidParams }

// MethodNotFoundError indicates an unknown JSON-RPC method.
type MethodNotFoundError struct {
	Method string
}

func (e MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.Method)
}

// Code returns the JSON-RPC error code.
func (e MethodNotFoundError) Code() int { return ErrorCodeMethodNotFound }

// RPCError is an error returned by a remote agent over the protocol.
type RPCError struct {
	ErrCode int
	Msg     string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("RPC error: [%d] %s", e.ErrCode, e.Msg)
}

// Code returns the JSON-RPC error code.
func (e RPCError) Code() int { return e.ErrCode }
