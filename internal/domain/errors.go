package domain

import "errors"

// ErrNotFound is returned by store lookups when no row exists for the key.
var ErrNotFound = errors.New("not found")
