package mmap

import "errors"

var (
	ErrBadLength   = errors.New("mmap: bad length")
	ErrClosed      = errors.New("mmap: mapping closed")
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)
