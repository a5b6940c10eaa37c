package kv

import "github.com/pkg/errors"

// ErrNotFound is returned by Get for a key that has no value.
var ErrNotFound = errors.New("kv: not found")
