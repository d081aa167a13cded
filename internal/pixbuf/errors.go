package pixbuf

import "errors"

// Error categories shared by the decoders and encoders. Codec errors wrap
// exactly one of these so callers can branch with errors.Is.
var (
	ErrIO         = errors.New("i/o error")
	ErrFormat     = errors.New("format error")
	ErrAllocation = errors.New("allocation error")
)
