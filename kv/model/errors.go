package model

import (
	"fmt"
	"strings"

	"github.com/pingcap/errors"
)

// ErrBadRequest is returned for malformed requests: invalid keys, foreign
// app ids, bad index transitions, mismatched cursors and the like.
type ErrBadRequest struct {
	Reason string
}

func (e *ErrBadRequest) Error() string {
	return "bad request: " + e.Reason
}

// BadRequestf builds an ErrBadRequest with a stack attached.
func BadRequestf(format string, args ...interface{}) error {
	return errors.WithStack(&ErrBadRequest{Reason: fmt.Sprintf(format, args...)})
}

// ErrNeedIndex is returned when a query needs a composite index that is not
// registered. Index holds the missing shape.
type ErrNeedIndex struct {
	Index *CompositeIndex
	// NoneDefined is set when the app has no composite index at all.
	NoneDefined bool
}

func (e *ErrNeedIndex) Error() string {
	if e.NoneDefined {
		return "This query requires a composite index, but none are defined. " +
			"You must create an index.yaml file in your application root.\n" + e.Suggestion()
	}
	return "This query requires a composite index that is not defined. " +
		"You must update the index.yaml file in your application root.\n" + e.Suggestion()
}

// Suggestion renders the missing index as an index.yaml entry.
func (e *ErrNeedIndex) Suggestion() string {
	var buf strings.Builder
	buf.WriteString("The following index is the minimum index required:\n")
	buf.WriteString("- kind: " + e.Index.Kind + "\n")
	if e.Index.Ancestor {
		buf.WriteString("  ancestor: yes\n")
	}
	if len(e.Index.Properties) > 0 {
		buf.WriteString("  properties:\n")
		for _, p := range e.Index.Properties {
			buf.WriteString("  - name: " + p.Name + "\n")
			if p.Direction == Descending {
				buf.WriteString("    direction: desc\n")
			}
		}
	}
	return buf.String()
}

// ErrCursorNotFound is returned for unknown, evicted or foreign cursors.
type ErrCursorNotFound struct {
	ID uint64
}

func (e *ErrCursorNotFound) Error() string {
	return fmt.Sprintf("cursor %d not found", e.ID)
}

func CursorNotFound(id uint64) error {
	return errors.WithStack(&ErrCursorNotFound{ID: id})
}

// ErrTransactionNotFound is returned when a handle does not name the open
// transaction.
type ErrTransactionNotFound struct {
	Handle uint64
}

func (e *ErrTransactionNotFound) Error() string {
	return fmt.Sprintf("transaction %d not found", e.Handle)
}

func TransactionNotFound(handle uint64) error {
	return errors.WithStack(&ErrTransactionNotFound{Handle: handle})
}

// ErrInternal wraps backend failures and corrupt stored data.
type ErrInternal struct {
	Reason string
}

func (e *ErrInternal) Error() string {
	return "internal error: " + e.Reason
}

func InternalErrorf(format string, args ...interface{}) error {
	return errors.WithStack(&ErrInternal{Reason: fmt.Sprintf(format, args...)})
}

// IsBadRequest reports whether the cause of err is an ErrBadRequest.
func IsBadRequest(err error) bool {
	_, ok := errors.Cause(err).(*ErrBadRequest)
	return ok
}

func IsNeedIndex(err error) bool {
	_, ok := errors.Cause(err).(*ErrNeedIndex)
	return ok
}

func IsCursorNotFound(err error) bool {
	_, ok := errors.Cause(err).(*ErrCursorNotFound)
	return ok
}

func IsTransactionNotFound(err error) bool {
	_, ok := errors.Cause(err).(*ErrTransactionNotFound)
	return ok
}
