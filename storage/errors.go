package storage

import "errors"

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrInvalidKey   = errors.New("storage: invalid key")
	ErrHashMismatch = errors.New("storage: stored value does not match key")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
