package compress

import (
	"errors"
	"fmt"
)

var (
	// ErrCodec is returned when the compression primitive fails: stream
	// corruption, invalid state, or any other non-recoverable condition.
	// Partial output is never returned alongside it.
	ErrCodec = errors.New("compress: codec failure")

	// ErrDictionaryRequired is returned when the first message of a
	// connection cannot be inflated because the peer compressed it against a
	// dictionary that was never installed. Callers should close the
	// connection with a protocol violation rather than retry.
	ErrDictionaryRequired = errors.New("compress: dictionary required")

	// ErrOutputLimit is returned when decoded or encoded output would exceed
	// the configured ceiling.
	ErrOutputLimit = errors.New("compress: output limit exceeded")
)

// codecErr wraps a primitive error as ErrCodec, letting an output-limit
// failure keep its own identity.
func codecErr(err error) error {
	if errors.Is(err, ErrOutputLimit) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCodec, err)
}
