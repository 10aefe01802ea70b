package source

import "errors"

// ErrSourceNotFound indicates that the requested source does not exist in
// the State Store.
var ErrSourceNotFound = errors.New("source not found")
