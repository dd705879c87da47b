package protocol

// Failure codes attached to failed command results and logged warnings.
const (
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrNotFound       = "E_NOT_FOUND"
	ErrInvalidTarget  = "E_INVALID_TARGET"
	ErrNoLevel        = "E_NO_LEVEL"
	ErrUnknownCommand = "E_UNKNOWN_COMMAND"
	ErrBusy           = "E_BUSY"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:     {},
	ErrNotFound:       {},
	ErrInvalidTarget:  {},
	ErrNoLevel:        {},
	ErrUnknownCommand: {},
	ErrBusy:           {},
	ErrInternal:       {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
