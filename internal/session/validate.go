package session

import (
	"errors"
	"fmt"
)

const maxNameLen = 64

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid session name")

// ValidateName accepts 1 to 64 lowercase letters, digits, '-' and '_'. The
// name becomes a directory under BaseDir, so anything path-like is refused.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w %q: length must be 1-%d", ErrInvalidName, name, maxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("%w %q: character %q not allowed (use a-z, 0-9, - or _)", ErrInvalidName, name, c)
	}
	return nil
}
