package lights

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned for malformed effect parameters
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownLight is returned when a light name is not in the store
	ErrUnknownLight = errors.New("unknown light")
	// ErrPartialPush is matched by every *PushError
	ErrPartialPush = errors.New("partial push failure")
)

// LightError is the failure to push one light
type LightError struct {
	Light string
	Err   error
}

func (e LightError) Error() string {
	return fmt.Sprintf("%s: %v", e.Light, e.Err)
}

func (e LightError) Unwrap() error {
	return e.Err
}

// PushError reports the lights that failed during a push. Lights not listed
// were pushed successfully and are clean.
type PushError struct {
	Failed []LightError
	Pushed int
}

func (e *PushError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("push failed for %d of %d lights: %s",
		len(e.Failed), len(e.Failed)+e.Pushed, strings.Join(parts, "; "))
}

func (e *PushError) Is(target error) bool {
	return target == ErrPartialPush
}

func (e *PushError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

// FailedLights returns the names of the lights that failed to push
func (e *PushError) FailedLights() []string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Light)
	}
	return names
}
