package identityapi

import (
	"errors"
	"fmt"
)

// Kind classifies why a username could not be resolved remotely.
type Kind int

const (
	// KindNetwork covers timeouts, refused connections and DNS failures.
	// Callers fall back to a local lookup.
	KindNetwork Kind = iota + 1

	// KindStatus is any response other than 200 OK.
	KindStatus

	// KindMalformed is a 200 OK whose body is not a JSON object with a
	// usable username.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ResolutionError reports a failed call to the identity API.
type ResolutionError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("identity api returned status %d", e.StatusCode)
	default:
		if e.Err == nil {
			return fmt.Sprintf("identity api %s error", e.Kind)
		}
		return fmt.Sprintf("identity api %s error: %v", e.Kind, e.Err)
	}
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a ResolutionError in err's chain, or 0.
func KindOf(err error) Kind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}
