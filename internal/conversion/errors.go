package conversion

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidPayloadError marks conversion failures caused by the uploaded data
// itself: content that is not gzip, lines that are not LSIF, an unsupported
// format version, or an edge naming an element that was never defined.
// Retrying the conversion cannot succeed.
type InvalidPayloadError struct {
	Message string
}

func (e *InvalidPayloadError) Error() string {
	return e.Message
}

func invalidPayloadf(format string, args ...interface{}) error {
	return &InvalidPayloadError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalidPayload reports whether err was caused by the upload content
// rather than the environment.
func IsInvalidPayload(err error) bool {
	_, ok := errors.Cause(err).(*InvalidPayloadError)
	return ok
}
