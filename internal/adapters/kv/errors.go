package kv

import "errors"

// Sentinel errors for the kv package.
var (
	ErrNotFound = errors.New("kv: key not found")
	ErrConnect  = errors.New("kv: connect failed")
)
