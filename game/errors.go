package game

import "errors"

var (
	// ErrUnknownPuzzle indicates the requested puzzle id is not in the catalog.
	ErrUnknownPuzzle = errors.New("unknown puzzle")
)
