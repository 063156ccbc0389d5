package answering

import "fmt"

// Code classifies a failed exchange with the answering service.
type Code string

const (
	// CodeUnreachable covers transport failures. The request never reached
	// the service, or the reply never made it back.
	CodeUnreachable Code = "unreachable"
	// CodeService covers replies carrying a non-success HTTP status.
	CodeService Code = "service"
	// CodeBadReply covers success replies whose body cannot be used.
	CodeBadReply Code = "bad_reply"
)

// Error describes a failed exchange with the answering service.
type Error struct {
	Code    Code
	Status  int // HTTP status, when one was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
