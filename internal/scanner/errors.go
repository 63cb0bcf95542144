package scanner

import "errors"

var (
	// ErrConfiguration marks a target or destination that cannot be scanned as provisioned.
	ErrConfiguration = errors.New("configuration error")
	// ErrProvider marks a failed head or log query against the chain node.
	ErrProvider = errors.New("provider error")
	// ErrForwarding marks a pass in which a sink rejected at least one record.
	ErrForwarding = errors.New("forwarding error")
	// ErrStore marks a failed read or write against the cursor store.
	ErrStore = errors.New("store error")
)

// Class labels a pass failure for logs and metrics.
type Class string

const (
	ClassNone          Class = "none"
	ClassConfiguration Class = "configuration"
	ClassProvider      Class = "provider"
	ClassForwarding    Class = "forwarding"
	ClassStore         Class = "store"
	ClassUnknown       Class = "unknown"
)

// Classify maps err onto the failure taxonomy. Configuration wins over the
// other classes when several apply.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrProvider):
		return ClassProvider
	case errors.Is(err, ErrForwarding):
		return ClassForwarding
	case errors.Is(err, ErrStore):
		return ClassStore
	default:
		return ClassUnknown
	}
}

// Retryable reports whether the next cycle can succeed without operator action.
func (c Class) Retryable() bool {
	switch c {
	case ClassProvider, ClassForwarding, ClassStore:
		return true
	default:
		return false
	}
}
