package directory

import "errors"

var (
	// ErrNameConflict is returned by a strict AddressBook when the name is taken.
	ErrNameConflict = errors.New("city name already registered")
	// ErrNodeUnknown is returned when a name or id is not present.
	ErrNodeUnknown = errors.New("city not found")
	// ErrTelemetryPending is returned when a city is registered but has not
	// reported telemetry yet. It is never folded into ErrNodeUnknown.
	ErrTelemetryPending = errors.New("city was found, but no info (yet)")
	// ErrInvalidMetadata is returned for registrations missing required fields.
	ErrInvalidMetadata = errors.New("invalid city metadata")
)

// Kind is a closed classification of directory errors.
type Kind int

const (
	KindNone Kind = iota
	KindConflict
	KindUnknown
	KindPending
	KindInvalid
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConflict:
		return "name_conflict"
	case KindUnknown:
		return "node_unknown"
	case KindPending:
		return "telemetry_pending"
	case KindInvalid:
		return "invalid"
	default:
		return "other"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNameConflict):
		return KindConflict
	case errors.Is(err, ErrNodeUnknown):
		return KindUnknown
	case errors.Is(err, ErrTelemetryPending):
		return KindPending
	case errors.Is(err, ErrInvalidMetadata):
		return KindInvalid
	default:
		return KindOther
	}
}
