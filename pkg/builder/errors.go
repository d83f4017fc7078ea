package builder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModelViolation matches every *ModelViolation.
	ErrModelViolation = errors.New("model violation")

	// ErrAttachmentWrite matches every *AttachmentWriteError.
	ErrAttachmentWrite = errors.New("attachment write failure")
)

// ModelViolation reports an event that is illegal in the builder's
// current state. It aborts the parse.
type ModelViolation struct {
	State    string
	Event    string
	Expected []string
	URI      string
	Line     int
	Reason   string
}

func (e *ModelViolation) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "model violation: unexpected %s", e.Event)

	if e.Reason != "" {
		fmt.Fprintf(&sb, " (%s)", e.Reason)
	}

	fmt.Fprintf(&sb, " in state [%s]", e.State)

	if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, ", expected one of: %s", strings.Join(e.Expected, ", "))
	}

	if e.URI != "" {
		fmt.Fprintf(&sb, " at %s", e.URI)

		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
		}
	} else if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}

	return sb.String()
}

// Is makes errors.Is(err, ErrModelViolation) hold.
func (e *ModelViolation) Is(target error) bool {
	return target == ErrModelViolation
}

// AttachmentWriteError reports that an embedding could not be staged.
type AttachmentWriteError struct {
	MimeType string
	Err      error
}

func (e *AttachmentWriteError) Error() string {
	return fmt.Sprintf("staging %s attachment: %v", e.MimeType, e.Err)
}

func (e *AttachmentWriteError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAttachmentWrite) hold.
func (e *AttachmentWriteError) Is(target error) bool {
	return target == ErrAttachmentWrite
}
