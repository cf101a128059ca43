// Package errors carries the error annotation helper used throughout
// fastflash. Every layer wraps with call-site context on the way up;
// only the command layer turns an error into a process exit.
package errors

import "fmt"

// Wrap annotates err with context using %w, so callers can still
// unwrap or match sentinels. A nil err stays nil, letting call sites
// wrap unconditionally.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
