package gecko

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed operation.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConnect
	KindCommandSend
	KindReadData
	KindWriteData
	KindInvalidAddress
	KindInvalidReply
	KindTooManyRetries
	KindStreamSizeInvalid
)

var kindNames = map[Kind]string{
	KindNotFound:          "agent not found",
	KindConnect:           "connect failed",
	KindCommandSend:       "command send failed",
	KindReadData:          "read data failed",
	KindWriteData:         "write data failed",
	KindInvalidAddress:    "invalid address",
	KindInvalidReply:      "invalid reply",
	KindTooManyRetries:    "too many retries",
	KindStreamSizeInvalid: "stream size invalid",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string {
	return "gecko: " + k.String()
}

var (
	// ErrFatal marks an I/O fault. The session is already disconnected.
	ErrFatal = errors.New("gecko: connection fault")
	// ErrShortTransfer marks a read or write that moved fewer bytes than
	// requested without an I/O fault.
	ErrShortTransfer = errors.New("gecko: short transfer")
	ErrNotConnected  = errors.New("gecko: not connected")
	ErrConnected     = errors.New("gecko: session is connected")
)

// Error is the typed failure returned by Session operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	parts := []string{"gecko"}
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, e.Kind.String())
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// IsFatal reports whether err came from an I/O fault; the caller must
// reconnect before issuing further operations.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// KindOf extracts the Kind of err, or 0 when err is not a gecko Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func failure(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func failuref(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}
