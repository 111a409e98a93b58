// Package engineerr defines the typed error kinds the bridge engine raises
// and the propagation policy a caller uses to decide whether to recover
// locally, degrade a feature, or surface a notice to the UI.
package engineerr

import "fmt"

// Kind identifies a category of engine failure. Callers switch on Kind
// rather than matching error strings.
type Kind int

const (
	_ Kind = iota
	TransportNotFound
	TransportOpenDenied
	TransportReadTimeout
	TransportReadFailed
	TransportWriteFailed
	ProtocolUnknownReportId
	ProtocolCrcBadOnHandshake
	BusDriverUnavailable
	HiderUnavailable
	VirtualPadPlugFailed
	ProfileNotFound
	ProfileNameInvalid
)

func (k Kind) String() string {
	switch k {
	case TransportNotFound:
		return "Transport.NotFound"
	case TransportOpenDenied:
		return "Transport.OpenDenied"
	case TransportReadTimeout:
		return "Transport.ReadTimeout"
	case TransportReadFailed:
		return "Transport.ReadFailed"
	case TransportWriteFailed:
		return "Transport.WriteFailed"
	case ProtocolUnknownReportId:
		return "Protocol.UnknownReportId"
	case ProtocolCrcBadOnHandshake:
		return "Protocol.CrcBadOnHandshake"
	case BusDriverUnavailable:
		return "BusDriver.Unavailable"
	case HiderUnavailable:
		return "Hider.Unavailable"
	case VirtualPadPlugFailed:
		return "VirtualPad.PlugFailed"
	case ProfileNotFound:
		return "Profile.NotFound"
	case ProfileNameInvalid:
		return "Profile.NameInvalid"
	default:
		return "Unknown"
	}
}

// Error pairs a machine-readable Kind with a human-facing Detail and an
// optional wrapped Cause, mirroring a status+title+detail problem struct
// but keyed by domain kind instead of an HTTP status.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Recoverable reports whether the propagation policy treats
// this kind as something the supervisor handles locally without stopping
// the engine: transport errors are always retried, protocol errors are
// logged and the frame skipped, and driver/hider unavailability degrades a
// feature rather than failing the run.
func Recoverable(kind Kind) bool {
	switch kind {
	case TransportNotFound, TransportOpenDenied, TransportReadTimeout, TransportReadFailed, TransportWriteFailed,
		ProtocolUnknownReportId, ProtocolCrcBadOnHandshake,
		BusDriverUnavailable, HiderUnavailable, VirtualPadPlugFailed:
		return true
	default:
		return false
	}
}
