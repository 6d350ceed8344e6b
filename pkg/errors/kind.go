package errors

// Kind enumerates the outcomes an engine call can produce.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindValidationFailed
	KindConflict
	KindInternal
)

var kindNames = map[Kind]string{
	KindOK:               "OK",
	KindNotFound:         "NotFound",
	KindUnauthorized:     "Unauthorized",
	KindInvalidState:     "InvalidState",
	KindValidationFailed: "ValidationFailed",
	KindConflict:         "Conflict",
	KindInternal:         "Internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// KindOf classifies err. A nil error is KindOK; anything unrecognised
// (storage failures included) is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}

	switch {
	case IsNotFound(err):
		return KindNotFound
	case IsPermission(err), IsUnauthorized(err):
		return KindUnauthorized
	case IsInvalidState(err):
		return KindInvalidState
	case IsValidationFailed(err), IsValidation(err):
		return KindValidationFailed
	case IsConflict(err):
		return KindConflict
	default:
		return KindInternal
	}
}
