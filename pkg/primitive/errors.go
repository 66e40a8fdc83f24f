package primitive

import "fmt"

// ErrUnsupported is returned when a kind has no registered constructor.
type ErrUnsupported struct {
	Family string
	Kind   fmt.Stringer
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("primitive: unsupported %s kind %s", e.Family, e.Kind)
}
