package api

import "fmt"

// WrapKind annotates err with the operation and a sentinel kind so callers
// can match it with errors.Is.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
