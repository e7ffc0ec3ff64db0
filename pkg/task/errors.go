package task

import (
	"github.com/thehivegroup-ai/agentmesh/pkg/a2a"
)

// Error is a task-domain error with a stable string code that maps onto
// the wire-level codes in pkg/a2a.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrTaskNotFound        = &Error{Code: a2a.ErrCodeTaskNotFound, Message: "task not found"}
	ErrTaskNotCancelable   = &Error{Code: a2a.ErrCodeTaskNotCancelable, Message: "task is in a terminal state"}
	ErrTaskAlreadyCanceled = &Error{Code: a2a.ErrCodeTaskAlreadyDone, Message: "task already canceled"}
)
