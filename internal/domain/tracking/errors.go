package tracking

import "errors"

// ErrDebounced is returned when a call arrives inside the cooldown of the
// previous one for the same session.
var ErrDebounced = errors.New("tracking: debounced")
