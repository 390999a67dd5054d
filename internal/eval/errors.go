package eval

import "fmt"

// ErrorKind classifies an evaluation failure.
type ErrorKind string

const (
	// ErrUndefined is a reference to a name that is not bound.
	ErrUndefined ErrorKind = "undefined"
	// ErrType is an operation applied to operands of the wrong kind.
	ErrType ErrorKind = "type"
	// ErrUnsupported is a construct outside the accepted language subset.
	ErrUnsupported ErrorKind = "unsupported"
	// ErrValue is a well-typed operation with an invalid operand value
	// (bad index, bad conversion, exceeded loop bound).
	ErrValue ErrorKind = "value"
)

// Error is a fatal evaluation error. The run aborts; the flow graph
// recorded so far stays exportable.
type Error struct {
	Kind ErrorKind
	Msg  string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluation error (%s) at line %d: %s", e.Kind, e.Line, e.Msg)
}
