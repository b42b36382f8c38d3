package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var (
	ErrUnsupported = errors.New("clipboard: no clipboard utility available")
	ErrEmpty       = errors.New("clipboard: nothing to copy")
)

var (
	writeAll    = cb.WriteAll
	unsupported = func() bool { return cb.Unsupported }
)

// Available reports whether a system clipboard can be reached.
func Available() bool {
	return !unsupported()
}

// Copy puts a transcript on the system clipboard. Blank text is refused so
// an empty result never wipes what the user had copied.
func Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if unsupported() {
		return ErrUnsupported
	}
	return writeAll(text)
}
