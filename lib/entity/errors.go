package entity

import "errors"

var (
	// ErrMalformedRecord is returned for truncated arrays, bad lengths or a version count mismatch
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownFormat is returned for a token outside the closed format set
	ErrUnknownFormat = errors.New("unknown format token")
)
