package freeze

import "fmt"

// MissingCapabilityError means the compositor does not advertise an
// interface the freeze cannot work without.
type MissingCapabilityError struct {
	Interface string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("compositor does not support %s", e.Interface)
}

// CaptureFailedError means the compositor reported a failed capture on
// an output. One failed output aborts the whole freeze so no partial
// set of surfaces ever shows.
type CaptureFailedError struct {
	Output string
}

func (e *CaptureFailedError) Error() string {
	return fmt.Sprintf("capture failed on %s", e.Output)
}
