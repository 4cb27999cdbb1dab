package protocol

import "errors"

var (
	ErrMalformedField = errors.New("protocol: malformed field")
	ErrNestedBatch    = errors.New("protocol: batch packet inside batch packet")
	ErrOversizedBatch = errors.New("protocol: decompressed batch exceeds limit")
	ErrNoProgress     = errors.New("protocol: sub-packet decoder made no progress")
	ErrNotBatch       = errors.New("protocol: not a batch packet")
)
